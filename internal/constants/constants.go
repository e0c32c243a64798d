// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face crop constants
const (
	// FaceCropSize is the side length of the square crop handed to embedders
	FaceCropSize = 112

	// DetectorInputSize is the side length of the learned detector input
	DetectorInputSize = 300

	// DefaultDetectionConfidence is the minimum confidence for a learned detection
	DefaultDetectionConfidence = 0.5
)

// Cascade detector constants
const (
	// DefaultScaleFactor is the pyramid step between cascade scan scales
	DefaultScaleFactor = 1.1

	// DefaultMinNeighbors is the minimum number of overlapping raw hits a face needs
	DefaultMinNeighbors = 5

	// GroupEps is the relative tolerance used when merging overlapping hits
	GroupEps = 0.2

	// CascadeURL is OpenCV's BSD-licensed frontal face cascade
	CascadeURL = "https://raw.githubusercontent.com/opencv/opencv/4.x/data/haarcascades/haarcascade_frontalface_default.xml"

	// MaxCascadeBytes caps a downloaded cascade file
	MaxCascadeBytes = 8 << 20
)

// Embedding constants
const (
	// EmbeddingDim is the length of the fallback embedding
	EmbeddingDim = 512

	// HashSampleSize is the side length the fallback embedder downsamples to
	HashSampleSize = 64
)

// Search constants
const (
	// DefaultTopK is the default number of matches returned per query
	DefaultTopK = 3

	// DefaultScoreThreshold is the default inclusive score floor
	DefaultScoreThreshold = 0.0
)

// Request constants
const (
	// MaxRequestBodyBytes bounds the JSON body of a match request
	MaxRequestBodyBytes = 20 << 20

	// MaxImageSize is the maximum dimension (width or height) kept before detection
	MaxImageSize = 1920
)

// Build constants
const (
	// WorkerPoolSize is the default number of images embedded in parallel while building
	WorkerPoolSize = 4
)
