package coordinator

import "s2s-stream-client/internal/service/session"

// FileUnits expands files into one unit per file per iteration. Iterations
// are the outer loop, so every file runs once before any file runs again.
func FileUnits(files []string, iterations int, gen *session.Generator) []session.Unit {
	if iterations < 1 {
		iterations = 1
	}
	units := make([]session.Unit, 0, len(files)*iterations)
	for it := 0; it < iterations; it++ {
		for _, f := range files {
			units = append(units, session.Unit{
				Index:     len(units),
				ID:        gen.Next(),
				Path:      f,
				Iteration: it,
			})
		}
	}
	return units
}

// LiveUnit returns the single unit for a live capture device.
func LiveUnit(device string, gen *session.Generator) []session.Unit {
	return []session.Unit{{ID: gen.Next(), Device: device, Live: true}}
}
