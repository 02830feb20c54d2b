package device

import (
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/h264reader"
	"github.com/rs/zerolog"

	"driftcast/internal/compositor"
	"driftcast/internal/core"
)

var startCode = []byte{0, 0, 0, 1}

// FFmpegEncoder pipes raw RGBA surfaces through an external ffmpeg process
// producing Annex-B H264. Encoding is pipelined: a frame written now yields
// a sample a few ticks later, and Encode reports ErrNoSample until the first
// access unit emerges.
type FFmpegEncoder struct {
	size   int
	logger zerolog.Logger

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	samples chan []byte

	mu     sync.Mutex
	closed bool
}

func NewFFmpegEncoder(path string, size, fps int, bitrate string, logger zerolog.Logger) (*FFmpegEncoder, error) {
	dim := strconv.Itoa(size) + "x" + strconv.Itoa(size)
	cmd := exec.Command(path,
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", dim,
		"-r", strconv.Itoa(fps),
		"-i", "-",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-b:v", bitrate,
		"-pix_fmt", "yuv420p",
		"-f", "h264",
		"-",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	e := &FFmpegEncoder{
		size:    size,
		logger:  logger.With().Str("module", "encoder").Logger(),
		cmd:     cmd,
		stdin:   stdin,
		samples: make(chan []byte, 8),
	}
	go e.readSamples(stdout)
	return e, nil
}

// Encode feeds one surface to the encoder and returns the next access unit
// if one is ready. Returns compositor.ErrNoSample while the pipeline warms
// up or runs behind.
func (e *FFmpegEncoder) Encode(frame *image.RGBA, _ time.Duration) ([]byte, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, fmt.Errorf("encoder closed")
	}
	_, err := e.stdin.Write(frame.Pix)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("feed encoder: %w", err)
	}

	select {
	case sample := <-e.samples:
		return sample, nil
	default:
		return nil, compositor.ErrNoSample
	}
}

func (e *FFmpegEncoder) Codec() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeH264,
		ClockRate: 90000,
	}
}

func (e *FFmpegEncoder) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	_ = e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		e.logger.Debug().Err(err).Msg("ffmpeg exited")
	}
}

// readSamples regroups the NAL stream into access units: parameter sets and
// SEI are buffered with the slice that follows them, and each slice NAL
// closes out one sample.
func (e *FFmpegEncoder) readSamples(stdout io.Reader) {
	reader, err := h264reader.NewReader(stdout)
	if err != nil {
		e.logger.Error().Err(err).Msg("h264 reader init failed")
		return
	}

	var pending []byte
	for {
		nal, err := reader.NextNAL()
		if err != nil {
			if err != io.EOF {
				e.logger.Debug().Err(err).Msg("h264 read ended")
			}
			return
		}
		pending = append(pending, startCode...)
		pending = append(pending, nal.Data...)

		if nal.UnitType == h264reader.NalUnitTypeCodedSliceNonIdr ||
			nal.UnitType == h264reader.NalUnitTypeCodedSliceIdr {
			sample := make([]byte, len(pending))
			copy(sample, pending)
			pending = pending[:0]

			select {
			case e.samples <- sample:
			default:
				// Consumer is behind; drop the oldest to keep latency low.
				select {
				case <-e.samples:
				default:
				}
				select {
				case e.samples <- sample:
				default:
				}
			}
		}
	}
}

var _ core.VideoEncoder = (*FFmpegEncoder)(nil)
