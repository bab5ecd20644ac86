package usecase

// PointCloudCompressor is one stage of the frame chain. Compress takes the
// output of the previous stage (initially encoded points); Decompress undoes it.
type PointCloudCompressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}
