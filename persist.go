package keystone

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Save writes the correction state to path as flat key=value text:
//
//	enabled=<0|1>
//	corner1=<x>,<y>   ... corner4
//	border=<0|1>
//	cornermarks=<0|1>
//	border_width=<int>
//	mesh_size=<int>           (only when a mesh is configured)
//	mesh_<row>_<col>=<x>,<y>  (one line per mesh point)
//
// Coordinates are written with full float64 precision so a save/load
// round trip reproduces identical in-memory values.
func (s *State) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("keystone: save state: %w", err)
	}
	w := bufio.NewWriter(f)

	fmt.Fprintf(w, "# keystone correction state\n")
	fmt.Fprintf(w, "enabled=%s\n", formatBool(s.enabled))
	for i := 0; i < NumCorners; i++ {
		fmt.Fprintf(w, "corner%d=%s\n", i+1, formatPoint(s.corners[i]))
	}
	fmt.Fprintf(w, "border=%s\n", formatBool(s.borderVisible))
	fmt.Fprintf(w, "cornermarks=%s\n", formatBool(s.cornerMarks))
	fmt.Fprintf(w, "border_width=%d\n", s.borderWidth)
	if s.meshSize >= MinMeshSize {
		fmt.Fprintf(w, "mesh_size=%d\n", s.meshSize)
		for r := 0; r < s.meshSize; r++ {
			for c := 0; c < s.meshSize; c++ {
				fmt.Fprintf(w, "mesh_%d_%d=%s\n", r, c, formatPoint(s.mesh[r][c]))
			}
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("keystone: save state: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("keystone: save state: %w", err)
	}
	return nil
}

// Load reads correction state previously written by Save. Lines
// starting with '#' and unknown keys are skipped; a malformed value
// keeps the previous in-memory value and is never fatal. Missing keys
// keep their defaults. After loading, the matrix is recomputed and the
// change hook fires once.
func (s *State) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("keystone: load state: %w", err)
	}
	defer f.Close()

	log := Logger()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if !s.applyLine(key, value) {
			log.Debug("skipping malformed state line", "key", key, "value", value)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("keystone: load state: %w", err)
	}

	s.geometryChanged()
	return nil
}

// applyLine applies one key=value pair. Returns false when the value is
// malformed (the previous value is kept) and true otherwise, including
// for unknown keys, which are silently skipped.
func (s *State) applyLine(key, value string) bool {
	switch {
	case key == "enabled":
		return parseBoolInto(value, &s.enabled)
	case key == "border":
		return parseBoolInto(value, &s.borderVisible)
	case key == "cornermarks":
		return parseBoolInto(value, &s.cornerMarks)
	case key == "border_width":
		n, err := strconv.Atoi(value)
		if err != nil || n < MinBorderWidth || n > MaxBorderWidth {
			return false
		}
		s.borderWidth = n
		return true
	case key == "mesh_size":
		n, err := strconv.Atoi(value)
		if err != nil || n < MinMeshSize || n > MaxMeshSize {
			return false
		}
		s.SetMeshSize(n)
		return true
	case strings.HasPrefix(key, "corner"):
		idx, err := strconv.Atoi(key[len("corner"):])
		if err != nil || idx < 1 || idx > NumCorners {
			return false
		}
		p, ok := parsePoint(value)
		if !ok {
			return false
		}
		s.corners[idx-1] = p
		return true
	case strings.HasPrefix(key, "mesh_"):
		var row, col int
		if _, err := fmt.Sscanf(key, "mesh_%d_%d", &row, &col); err != nil {
			return false
		}
		if row < 0 || row >= s.meshSize || col < 0 || col >= s.meshSize {
			return false
		}
		p, ok := parsePoint(value)
		if !ok {
			return false
		}
		s.mesh[row][col] = p.Clamp(-1, 2)
		return true
	}
	// Unknown keys are forward compatibility, not errors.
	return true
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseBoolInto(value string, dst *bool) bool {
	switch value {
	case "0":
		*dst = false
	case "1":
		*dst = true
	default:
		return false
	}
	return true
}

func formatPoint(p Point) string {
	return strconv.FormatFloat(p.X, 'g', -1, 64) + "," +
		strconv.FormatFloat(p.Y, 'g', -1, 64)
}

func parsePoint(value string) (Point, bool) {
	xs, ys, ok := strings.Cut(value, ",")
	if !ok {
		return Point{}, false
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return Point{}, false
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return Point{}, false
	}
	return Point{X: x, Y: y}, true
}
