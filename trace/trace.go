package trace

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Hypnotriod/jpegenc"

	"rabbitcar/linesensor"
	"rabbitcar/position"
)

const (
	CELL_WIDTH           = 8
	ROW_HEIGHT           = 2
	MJPEG_FRAME_BOUNDARY = "frameboundary"
)

var (
	colorLine     = [3]byte{240, 240, 240}
	colorFloor    = [3]byte{32, 32, 32}
	colorPosition = [3]byte{230, 30, 30}
	colorLost     = [3]byte{230, 200, 30}
	colorRejected = [3]byte{30, 120, 230}
)

var jpegParams = jpegenc.EncodeParams{
	QualityFactor: jpegenc.QualityFactorMedium,
	PixelType:     jpegenc.PixelTypeRGB888,
	Subsample:     jpegenc.Subsample444,
}

type row struct {
	frame    linesensor.Frame
	estimate position.Estimate
	active   []bool
}

// Recorder keeps the last sensor frames as a waterfall: newest row on top,
// one column per sensor, the estimated position as a marker.
type Recorder struct {
	mu       sync.Mutex
	sensors  int
	max      float64
	rows     []row
	next     int
	recorded uint64
}

// NewRecorder keeps history frames of sensors elements. maxPosition is the estimate of the last element.
func NewRecorder(sensors int, maxPosition float64, history int) *Recorder {
	return &Recorder{
		sensors: max(sensors, 1),
		max:     maxPosition,
		rows:    make([]row, 0, max(history, 1)),
	}
}

func (r *Recorder) Width() int {
	return r.sensors * CELL_WIDTH
}

func (r *Recorder) Height() int {
	return cap(r.rows) * ROW_HEIGHT
}

func (r *Recorder) Record(frame linesensor.Frame, est position.Estimate, whiteLine bool) {
	active := make([]bool, len(frame))
	for i := range frame {
		active[i] = position.Active(frame, i, whiteLine)
	}
	entry := row{frame: append(linesensor.Frame(nil), frame...), estimate: est, active: active}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rows) < cap(r.rows) {
		r.rows = append(r.rows, entry)
	} else {
		r.rows[r.next] = entry
	}
	r.next = (r.next + 1) % cap(r.rows)
	r.recorded++
}

func (r *Recorder) Recorded() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recorded
}

// Render draws the waterfall as RGB888 into pixels, which must hold Width*Height*3 bytes.
func (r *Recorder) Render(pixels []byte) {
	width := r.Width()
	clear(pixels)

	r.mu.Lock()
	defer r.mu.Unlock()
	for age := 0; age < len(r.rows); age++ {
		index := (r.next - 1 - age + 2*cap(r.rows)) % cap(r.rows)
		if index >= len(r.rows) {
			continue
		}
		entry := r.rows[index]
		marker := int(entry.estimate.Position / r.max * float64(width-1))
		for y := age * ROW_HEIGHT; y < (age+1)*ROW_HEIGHT; y++ {
			for x := 0; x < width; x++ {
				color := colorFloor
				if cell := x / CELL_WIDTH; cell < len(entry.active) && entry.active[cell] {
					color = colorLine
				}
				if r.max > 0 && x >= marker-1 && x <= marker+1 {
					switch {
					case entry.estimate.Rejected:
						color = colorRejected
					case !entry.estimate.OnLine:
						color = colorLost
					default:
						color = colorPosition
					}
				}
				copy(pixels[(y*width+x)*3:], color[:])
			}
		}
	}
}

// Handler streams the waterfall as MJPEG until the client goes away.
func Handler(recorder *Recorder, interval time.Duration) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		log.Print("Trace stream opened for ", req.RemoteAddr)
		rw.Header().Add("Content-Type", "multipart/x-mixed-replace; boundary=--"+MJPEG_FRAME_BOUNDARY)
		width, height := recorder.Width(), recorder.Height()
		pixels := make([]byte, width*height*3)
		jpegBuffer := make([]byte, width*height*3)
		boundary := "\r\n--" + MJPEG_FRAME_BOUNDARY + "\r\nContent-Type: image/jpeg\r\n\r\n"
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			recorder.Render(pixels)
			if err := writeFrame(rw, boundary, width, height, pixels, jpegBuffer); err != nil {
				log.Print("Cannot write response to ", req.RemoteAddr, ": ", err)
				break
			}
			if flusher, ok := rw.(http.Flusher); ok {
				flusher.Flush()
			}
			select {
			case <-req.Context().Done():
				log.Print("Trace stream closed for ", req.RemoteAddr)
				return
			case <-ticker.C:
			}
		}
	}
}

func writeFrame(w io.Writer, boundary string, width int, height int, pixels []byte, jpegBuffer []byte) error {
	bytesEncoded, err := jpegenc.Encode(width, height, jpegParams, pixels, jpegBuffer)
	if err != nil {
		return fmt.Errorf("could not encode frame: %w", err)
	}
	if _, err := io.WriteString(w, boundary); err != nil {
		return err
	}
	if _, err := w.Write(jpegBuffer[:bytesEncoded]); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\r\n")
	return err
}
