package logs

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/antoniostano/backendmcp/internal/reliability"
)

var (
	ErrInvalidMode = fmt.Errorf(`%w: invalid mode format. Use "head:<n>", "tail:<n>", "full", or "middle:<n>"`, reliability.ErrValidation)
	ErrNotFound    = errors.New("log file not found")
	ErrTooLarge    = errors.New("log file too large")
)

type ModeKind string

const (
	ModeFull   ModeKind = "full"
	ModeHead   ModeKind = "head"
	ModeTail   ModeKind = "tail"
	ModeMiddle ModeKind = "middle"
)

type Mode struct {
	Kind ModeKind
	N    int
}

func (m Mode) String() string {
	if m.Kind == ModeFull {
		return string(ModeFull)
	}
	return string(m.Kind) + ":" + strconv.Itoa(m.N)
}

var modePattern = regexp.MustCompile(`^(head|tail|middle):(\d+)$`)

func ParseMode(raw string) (Mode, error) {
	if raw == string(ModeFull) {
		return Mode{Kind: ModeFull}, nil
	}
	m := modePattern.FindStringSubmatch(raw)
	if m == nil {
		return Mode{}, ErrInvalidMode
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return Mode{}, ErrInvalidMode
	}
	if n <= 0 {
		return Mode{}, fmt.Errorf("%w: number of lines must be greater than 0", reliability.ErrValidation)
	}
	return Mode{Kind: ModeKind(m[1]), N: n}, nil
}

type Result struct {
	Mode          string   `json:"mode"`
	LogFilePath   string   `json:"logFilePath"`
	TotalLines    int      `json:"totalLines"`
	ReturnedLines int      `json:"returnedLines"`
	Lines         []string `json:"lines"`
}

// Reader slices one configured log file.
type Reader struct {
	path     string
	maxBytes int64
}

func NewReader(path string, maxSizeMB int) *Reader {
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	return &Reader{path: path, maxBytes: int64(maxSizeMB) * 1024 * 1024}
}

func (r *Reader) Path() string { return r.path }

func (r *Reader) Read(mode Mode) (Result, error) {
	res := Result{Mode: mode.String(), LogFilePath: r.path, Lines: []string{}}

	info, err := os.Stat(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res, fmt.Errorf("%w: %s", ErrNotFound, r.path)
		}
		return res, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() > r.maxBytes {
		return res, fmt.Errorf("%w (%.2fMB). Maximum supported size is %dMB",
			ErrTooLarge, float64(info.Size())/(1024*1024), r.maxBytes/(1024*1024))
	}

	raw, err := os.ReadFile(r.path)
	if err != nil {
		return res, fmt.Errorf("read log file: %w", err)
	}
	all := strings.Split(string(raw), "\n")
	if all[len(all)-1] == "" {
		all = all[:len(all)-1]
	}

	res.TotalLines = len(all)
	res.Lines = Slice(all, mode)
	res.ReturnedLines = len(res.Lines)
	return res, nil
}

// Slice applies mode to already-split lines.
func Slice(lines []string, mode Mode) []string {
	total := len(lines)
	n := mode.N
	switch mode.Kind {
	case ModeHead:
		if n > total {
			n = total
		}
		return lines[:n]
	case ModeTail:
		if n > total {
			n = total
		}
		return lines[total-n:]
	case ModeMiddle:
		if n >= total {
			return lines
		}
		start := (total - n) / 2
		return lines[start : start+n]
	default:
		return lines
	}
}
