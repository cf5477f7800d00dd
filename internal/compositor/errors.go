package compositor

import "errors"

var (
	ErrInvalidImage       = errors.New("invalid image")
	ErrSegmentationFailed = errors.New("segmentation failed")
	ErrDegenerateGeometry = errors.New("degenerate geometry")
)
