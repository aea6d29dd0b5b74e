package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// wavHeaderSize is the byte length of a canonical PCM WAV header.
const wavHeaderSize = 44

// WAVWriter streams 16-bit PCM frames to a file. The header is written
// with a zero length up front and patched on Close once the final data
// size is known. It is not safe for concurrent use.
type WAVWriter struct {
	file       *os.File
	sampleRate int
	channels   int
	dataBytes  uint32
}

// NewWAVWriter creates the output file and writes a provisional header.
func NewWAVWriter(path string, sampleRate, channels int) (*WAVWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	w := &WAVWriter{file: file, sampleRate: sampleRate, channels: channels}
	if err := w.writeHeader(); err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	// WriteAt leaves the offset at 0; samples must start after the header.
	if _, err := file.Seek(wavHeaderSize, io.SeekStart); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to seek past header: %w", err)
	}
	return w, nil
}

func (w *WAVWriter) writeHeader() error {
	var hdr [wavHeaderSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+w.dataBytes)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)        // PCM fmt chunk size
	binary.LittleEndian.PutUint16(hdr[20:22], 1)         // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(w.sampleRate*w.channels*2))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(w.channels*2))
	binary.LittleEndian.PutUint16(hdr[34:36], 16) // bits per sample
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], w.dataBytes)

	if _, err := w.file.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// WriteFrame appends a block of float32 samples as 16-bit PCM.
func (w *WAVWriter) WriteFrame(frame []float32) error {
	buf := make([]byte, len(frame)*2)
	for i, s := range frame {
		v := int16(s * 32767)
		if s >= 1 {
			v = 32767
		} else if s <= -1 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	w.dataBytes += uint32(len(buf))
	return nil
}

// Path returns the file path being written.
func (w *WAVWriter) Path() string {
	return w.file.Name()
}

// Close patches the header with the final data size and closes the file.
func (w *WAVWriter) Close() error {
	if err := w.writeHeader(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// WAVData holds a fully decoded PCM file.
type WAVData struct {
	Samples    []float32 // Interleaved samples in [-1,1]
	SampleRate int       // Samples per second per channel
	Channels   int       // Interleaved channel count
}

// ReadWAV decodes a 16-bit PCM WAV file into float32 samples.
func ReadWAV(path string) (*WAVData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	var riff [12]byte
	if _, err := io.ReadFull(file, riff[:]); err != nil {
		return nil, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a valid WAV file")
	}

	var (
		channels   int
		sampleRate int
		bits       int
		data       []byte
	)

	// Walk chunks until the data chunk is found.
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(file, chunk[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("failed to read chunk header: %w", err)
		}
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		// Chunk sizes come from the file; never allocate past what it holds.
		if size > info.Size() {
			return nil, fmt.Errorf("chunk %q size %d exceeds file size %d", chunk[0:4], size, info.Size())
		}

		switch string(chunk[0:4]) {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			fmtData := make([]byte, size)
			if _, err := io.ReadFull(file, fmtData); err != nil {
				return nil, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if binary.LittleEndian.Uint16(fmtData[0:2]) != 1 {
				return nil, fmt.Errorf("only PCM format is supported")
			}
			channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			bits = int(binary.LittleEndian.Uint16(fmtData[14:16]))
		case "data":
			data = make([]byte, size)
			if _, err := io.ReadFull(file, data); err != nil {
				return nil, fmt.Errorf("failed to read data chunk: %w", err)
			}
		default:
			if _, err := file.Seek(size, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("failed to skip chunk: %w", err)
			}
		}

		if data != nil && channels > 0 {
			break
		}
	}

	if channels == 0 || sampleRate == 0 {
		return nil, fmt.Errorf("fmt chunk not found")
	}
	if bits != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d, want 16", bits)
	}
	if data == nil {
		return nil, fmt.Errorf("data chunk not found")
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768.0
	}

	return &WAVData{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}
