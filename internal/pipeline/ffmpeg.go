package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	maxTailBytes = 8 * 1024 // tail of tool output kept for diagnostics
	lineBuffer   = 64
)

// Config holds the cutter's configuration.
type Config struct {
	FFmpegPath    string // empty = bundled copy, then PATH
	FFprobePath   string // empty = next to ffmpeg, bundled copy, then PATH
	BundleDir     string // directory holding ffmpeg_bin; empty = executable's directory
	DoctorTimeout time.Duration
	ProbeTimeout  time.Duration
	Logger        *slog.Logger
	DebugPaths    bool // if true, log full file paths; otherwise sanitise
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		DoctorTimeout: 15 * time.Second,
		ProbeTimeout:  30 * time.Second,
		Logger:        logger,
	}
}

// FFmpeg is the production Cutter.
type FFmpeg struct {
	cfg     Config
	ffmpeg  string
	ffprobe string // empty when ffprobe is unavailable
}

// NewFFmpeg resolves the tool binaries. A missing ffmpeg is ErrProcessLaunch;
// a missing ffprobe only disables probing.
func NewFFmpeg(cfg Config) (*FFmpeg, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	bundle := cfg.BundleDir
	if bundle == "" {
		if exe, err := os.Executable(); err == nil {
			bundle = filepath.Dir(exe)
		}
	}

	ffmpeg, err := resolveBinary(cfg.FFmpegPath, "ffmpeg", bundle)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessLaunch, err)
	}

	probePreferred := cfg.FFprobePath
	if probePreferred == "" {
		sibling := filepath.Join(filepath.Dir(ffmpeg), binaryName("ffprobe"))
		if _, err := os.Stat(sibling); err == nil {
			probePreferred = sibling
		}
	}
	ffprobe, err := resolveBinary(probePreferred, "ffprobe", bundle)
	if err != nil {
		cfg.Logger.Warn("ffprobe not found, source bitrate detection disabled", "error", err)
		ffprobe = ""
	}

	cfg.Logger.Info("cutter initialised", "ffmpeg", ffmpeg, "ffprobe", ffprobe)
	return &FFmpeg{cfg: cfg, ffmpeg: ffmpeg, ffprobe: ffprobe}, nil
}

// Doctor runs "-version" on each tool.
func (f *FFmpeg) Doctor(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.DoctorTimeout)
	defer cancel()

	caps := &Capabilities{FFmpegPath: f.ffmpeg, ProbedAt: time.Now()}

	out, err := exec.CommandContext(ctx, f.ffmpeg, "-hide_banner", "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s -version: %v", ErrProcessLaunch, f.ffmpeg, err)
	}
	caps.FFmpegVersion = firstLine(out)

	if f.ffprobe != "" {
		out, err := exec.CommandContext(ctx, f.ffprobe, "-hide_banner", "-version").Output()
		if err != nil {
			f.cfg.Logger.Warn("ffprobe -version failed", "error", err)
		} else {
			caps.FFprobePath = f.ffprobe
			caps.FFprobeVersion = firstLine(out)
			caps.HasProbe = true
		}
	}

	f.cfg.Logger.Info("doctor probe complete",
		"ffmpeg", caps.FFmpegVersion,
		"ffprobe", caps.FFprobeVersion,
	)
	return caps, nil
}

// Probe runs ffprobe on path.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if f.ffprobe == "" {
		return nil, fmt.Errorf("ffprobe unavailable")
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxTailBytes}
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w: %s", f.safePath(path), err, truncate(stderr.String(), 512))
	}
	return parseProbe(out)
}

// Start launches ffmpeg for one cut. stdout and stderr share one pipe read
// by a single goroutine.
func (f *FFmpeg) Start(ctx context.Context, spec CutSpec) (Process, error) {
	if err := os.MkdirAll(filepath.Dir(spec.Output), 0755); err != nil {
		return nil, fmt.Errorf("cannot create output dir: %w", err)
	}

	args := BuildArgs(spec)
	cmd := exec.CommandContext(ctx, f.ffmpeg, args...)

	f.cfg.Logger.Info("executing cut",
		"input", f.safePath(spec.Input),
		"output", f.safePath(spec.Output),
		"start", spec.Start.String(),
		"duration", spec.Duration.String(),
		"bitrate", spec.TargetBitrate(),
	)
	f.cfg.Logger.Debug("ffmpeg command", "path", f.ffmpeg, "args", args)

	p, err := startProcess(cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProcessLaunch, f.ffmpeg, err)
	}
	return p, nil
}

// BuildArgs returns the ffmpeg arguments for spec. Seeking before -i makes
// ffmpeg jump to the nearest keyframe and decode from there.
func BuildArgs(spec CutSpec) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-ss", formatSeconds(spec.Start),
		"-i", spec.Input,
		"-t", formatSeconds(spec.Duration),
		"-c:v", "libx264",
		"-preset", "medium",
	}
	if br := spec.TargetBitrate(); br > 0 {
		args = append(args, "-b:v", strconv.FormatInt(br, 10))
	}
	args = append(args,
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		spec.Output,
	)
	return args
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

type probeJSON struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		BitRate    string `json:"bit_rate"`
	} `json:"streams"`
}

func parseProbe(data []byte) (*ProbeResult, error) {
	var raw probeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}

	res := &ProbeResult{}
	if secs, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil {
		res.Duration = time.Duration(secs * float64(time.Second))
	}
	res.Bitrate, _ = strconv.ParseInt(raw.Format.BitRate, 10, 64)

	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if res.Codec != "" {
				continue
			}
			res.Codec = s.CodecName
			res.Width = s.Width
			res.Height = s.Height
			res.FrameRate = parseRate(s.RFrameRate)
			if br, err := strconv.ParseInt(s.BitRate, 10, 64); err == nil && br > 0 {
				res.Bitrate = br
			}
		case "audio":
			if res.AudioCodec == "" {
				res.AudioCodec = s.CodecName
			}
		}
	}
	return res, nil
}

// parseRate parses "30000/1001" or "25".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// resolveBinary finds a tool: the configured path, then a copy bundled in
// <bundle>/ffmpeg_bin/<os>/ or <bundle>/ffmpeg_bin/, then PATH.
func resolveBinary(preferred, name, bundle string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	if bundle != "" {
		for _, dir := range []string{
			filepath.Join(bundle, "ffmpeg_bin", runtime.GOOS),
			filepath.Join(bundle, "ffmpeg_bin"),
		} {
			candidate := filepath.Join(dir, binaryName(name))
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}
	}
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("no %s binary found (bundled or on PATH)", name)
}

func binaryName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

func (f *FFmpeg) safePath(path string) string {
	if f.cfg.DebugPaths {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Base(path)
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return filepath.Base(path)
}

func firstLine(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
