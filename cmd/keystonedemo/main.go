// Command keystonedemo probes the hardware, selects a correction
// backend, warps a generated 1920×1080 test pattern, and writes the
// result as a PNG. With no usable GPU it falls back to the CPU
// reference warp, so the output is inspectable on any machine.
//
// Example:
//
//	keystonedemo -tl 8,4 -br -6,-3 -out corrected.png
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/image/draw"

	"github.com/openbeam/keystone"
	"github.com/openbeam/keystone/backend"

	// Register every correction backend.
	_ "github.com/openbeam/keystone/backend/gles"
	_ "github.com/openbeam/keystone/backend/legacy"
	_ "github.com/openbeam/keystone/backend/vulkan"
)

func init() {
	// GL contexts are thread-affine.
	runtime.LockOSThread()
}

func main() {
	var (
		width   = flag.Int("width", 1920, "output width in pixels")
		height  = flag.Int("height", 1080, "output height in pixels")
		outPath = flag.String("out", "keystone.png", "output PNG path")
		state   = flag.String("state", "", "load/save correction state at this path")
		step    = flag.Int("step", keystone.DefaultStep, "adjustment step in thousandths")
		tl      = flag.String("tl", "", "top-left corner move, dx,dy in steps")
		tr      = flag.String("tr", "", "top-right corner move, dx,dy in steps")
		bl      = flag.String("bl", "", "bottom-left corner move, dx,dy in steps")
		br      = flag.String("br", "", "bottom-right corner move, dx,dy in steps")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	keystone.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*width, *height, *outPath, *state, *step, [4]string{*tl, *tr, *bl, *br}); err != nil {
		fmt.Fprintln(os.Stderr, "keystonedemo:", err)
		os.Exit(1)
	}
}

func run(width, height int, outPath, statePath string, step int, moves [4]string) error {
	st := keystone.NewState()
	if statePath != "" {
		if err := st.Load(statePath); err != nil {
			keystone.Logger().Warn("state load failed, starting fresh", "error", err)
		}
	}
	st.SetEnabled(true)
	st.SetStep(step)
	for corner, spec := range moves {
		if spec == "" {
			continue
		}
		dx, dy, err := parseMove(spec)
		if err != nil {
			return fmt.Errorf("corner %d: %w", corner+1, err)
		}
		st.AdjustCorner(corner, dx, dy)
	}
	if !st.IsConvex() {
		keystone.Logger().Warn("corner quad is not convex, output will be blank inside the fold")
	}

	ov := keystone.OverridesFromEnv()
	if ov.Step != 0 {
		st.SetStep(ov.Step)
	}
	sel := backend.NewSelector(backend.WithState(st), backend.WithOverrides(ov))
	if err := sel.Start(width, height); err != nil {
		return err
	}
	defer sel.Close()

	src := frameFromImage(testPattern(width, height))
	var out *keystone.Frame
	if sel.Active() != "" {
		corrected, err := sel.ProcessFrame(src)
		if err != nil {
			return err
		}
		out = corrected
		fmt.Printf("backend: %s\n", sel.Active())
	} else {
		out = keystone.NewFrame(width, height)
		switch err := keystone.WarpImage(st.Snapshot(), src, out); {
		case errors.Is(err, keystone.ErrDegenerateGeometry):
			keystone.Logger().Warn("degenerate corner geometry, writing uncorrected frame")
			out = src
		case err != nil:
			return err
		}
		fmt.Println("backend: none (CPU reference)")
	}

	if err := writePNG(outPath, out); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%dx%d)\n", outPath, out.Width, out.Height)

	if statePath != "" {
		if err := st.Save(statePath); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}
	return nil
}

func parseMove(spec string) (dx, dy int, err error) {
	xs, ys, ok := strings.Cut(spec, ",")
	if !ok {
		return 0, 0, fmt.Errorf("want dx,dy, got %q", spec)
	}
	dx, err = strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return 0, 0, err
	}
	dy, err = strconv.Atoi(strings.TrimSpace(ys))
	return dx, dy, err
}

// testPattern renders a 16×9 color checker at low resolution and
// upscales it bilinearly, which makes warped edges easy to judge.
func testPattern(width, height int) *image.RGBA {
	const cols, rows = 16, 9
	small := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			c := color.RGBA{
				R: uint8(x * 255 / (cols - 1)),
				G: uint8(y * 255 / (rows - 1)),
				B: 0,
				A: 255,
			}
			if (x+y)%2 == 0 {
				c.B = 255
			}
			small.SetRGBA(x, y, c)
		}
	}
	full := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(full, full.Bounds(), small, small.Bounds(), draw.Src, nil)
	return full
}

func frameFromImage(img *image.RGBA) *keystone.Frame {
	b := img.Bounds()
	f := keystone.NewFrame(b.Dx(), b.Dy())
	for y := 0; y < f.Height; y++ {
		copy(f.Data[y*f.Stride:(y+1)*f.Stride], img.Pix[y*img.Stride:y*img.Stride+f.Stride])
	}
	return f
}

func writePNG(path string, f *keystone.Frame) error {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+f.Width*4], f.Data[y*f.Stride:y*f.Stride+f.Width*4])
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return png.Encode(out, img)
}
