package web

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"

	"github.com/sweeney/fuel-kiosk/internal/telemetry"
)

// Feed is the /data document. The parallel arrays (labels, liters, types,
// prices) drive the dashboard charts; sessions carries the same rows in
// structured form.
type Feed struct {
	Status      string        `json:"status"`
	TotalLiters float64       `json:"totalLiters"`
	TotalSpent  float64       `json:"totalSpent"`
	AvgPrice    float64       `json:"avgPrice"`
	Labels      []string      `json:"labels"`
	Liters      []float64     `json:"liters"`
	Types       []string      `json:"types"`
	Prices      []string      `json:"prices"`
	Tilt        int           `json:"tilt"`
	Normal      int           `json:"normal"`
	Sessions    []FeedSession `json:"sessions"`
}

// FeedSession is one recent session.
type FeedSession struct {
	Seq     int     `json:"seq"`
	Liters  float64 `json:"liters"`
	Price   float64 `json:"price"`
	Dark    bool    `json:"dark"`
	Aborted bool    `json:"aborted"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Label returns the "#n" session label.
func Label(seq int) string {
	return fmt.Sprintf("#%d", seq)
}

// FormatPrice renders a price as shown to customers.
func FormatPrice(p float64) string {
	return fmt.Sprintf("€%.2f", p)
}

// BuildFeed converts a store snapshot into the status feed.
func BuildFeed(snap telemetry.Snapshot) Feed {
	f := Feed{
		Status:      snap.Status,
		TotalLiters: round2(snap.TotalLiters),
		TotalSpent:  round2(snap.TotalSpent),
		AvgPrice:    round2(snap.AveragePrice()),
		Labels:      make([]string, 0, len(snap.Recent)),
		Liters:      make([]float64, 0, len(snap.Recent)),
		Types:       make([]string, 0, len(snap.Recent)),
		Prices:      make([]string, 0, len(snap.Recent)),
		Tilt:        snap.Aborted,
		Normal:      snap.Completed,
		Sessions:    make([]FeedSession, 0, len(snap.Recent)),
	}
	for _, s := range snap.Recent {
		f.Labels = append(f.Labels, Label(s.Seq))
		f.Liters = append(f.Liters, round2(s.Liters))
		f.Types = append(f.Types, s.Kind())
		f.Prices = append(f.Prices, FormatPrice(s.Price))
		f.Sessions = append(f.Sessions, FeedSession{
			Seq:     s.Seq,
			Liters:  round2(s.Liters),
			Price:   round2(s.Price),
			Dark:    s.Dark,
			Aborted: s.Aborted,
		})
	}
	return f
}

// CSVHeader is the first row of the export.
var CSVHeader = []string{"Session", "Type", "Liters", "Price"}

// WriteCSV writes the full history export.
func WriteCSV(w io.Writer, sessions []telemetry.Session) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, s := range sessions {
		row := []string{
			Label(s.Seq),
			s.Kind(),
			fmt.Sprintf("%.2f", s.Liters),
			FormatPrice(s.Price),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
