package audio

import "encoding/binary"

// bitsPerSample is fixed at 16 for every WAV this package produces.
const bitsPerSample = 16

// EncodeWAV wraps mono float32 samples in a 16-bit PCM RIFF/WAV container
// suitable for multipart uploads to HTTP transcription backends.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	return EncodeWAVPCM16(Float32ToPCM16(samples), sampleRate, 1)
}

// EncodeWAVPCM16 wraps raw 16-bit signed little-endian PCM in a RIFF/WAV
// container.
func EncodeWAVPCM16(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}
