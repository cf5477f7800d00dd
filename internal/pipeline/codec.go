package pipeline

import "image"

// DecodeImage and EncodePNG expose the build-selected codec to the
// transport layer, which decodes uploads and encodes sync responses with
// the same machinery the async pipeline uses.

func DecodeImage(data []byte) (image.Image, error) {
	return decodeImage(data)
}

func EncodePNG(img image.Image) ([]byte, error) {
	return encodePNG(img)
}
