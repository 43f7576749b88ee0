package charts

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	quickchartgo "github.com/henomis/quickchart-go"
	"github.com/matthieukhl/segmentor/internal/config"
	log "github.com/sirupsen/logrus"
)

// Renderer turns chart configs into quickchart URLs or images.
type Renderer struct {
	width, height int64
	render        bool
}

func NewRenderer(cfg config.ChartsConfig) *Renderer {
	return &Renderer{width: cfg.Width, height: cfg.Height, render: cfg.Render}
}

func (r *Renderer) chart(c ChartConfig) (*quickchartgo.Chart, error) {
	bytes, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chart config: %w", err)
	}
	qc := quickchartgo.New()
	qc.Config = string(bytes)
	if r.width > 0 {
		qc.Width = r.width
	}
	if r.height > 0 {
		qc.Height = r.height
	}
	return qc, nil
}

// URL returns a quickchart link that renders c. No network access.
func (r *Renderer) URL(c ChartConfig) (string, error) {
	qc, err := r.chart(c)
	if err != nil {
		return "", err
	}
	url, err := qc.GetUrl()
	if err != nil {
		return "", fmt.Errorf("failed to get chart url: %w", err)
	}
	return url, nil
}

// Render fetches the PNG for c from quickchart and writes it to w.
func (r *Renderer) Render(c ChartConfig, w io.Writer) error {
	qc, err := r.chart(c)
	if err != nil {
		return err
	}
	if err := qc.Write(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// WriteArtifact saves <name>.url in dir and, when rendering is enabled,
// <name>.png. A failed render is logged and skipped; the link is kept.
func (r *Renderer) WriteArtifact(dir, name string, c ChartConfig) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	url, err := r.URL(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, name+".url"), []byte(url+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write chart link: %w", err)
	}
	if !r.render {
		return nil
	}

	path := filepath.Join(dir, name+".png")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := r.Render(c, f); err != nil {
		log.WithError(err).WithField("chart", name).Warn("Chart render failed, keeping link only")
		f.Close()
		return os.Remove(path)
	}
	return f.Close()
}
