// Package commands implements the fireplace-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/armish/fireplace/pkg/log"
)

// timestampFormat is used for every timestamp printed or exported.
const timestampFormat = "2006-01-02T15:04:05.000000Z"

// ParseLayerFlag parses a layer name (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "module":
		return log.LayerModule, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or module)", s)
	}
}

// ParseDirectionFlag parses a direction name (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category name (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state, or error)", s)
	}
}

// Criteria holds the textual filter flags shared by view, export, filter
// and stats.
type Criteria struct {
	SessionID string
	Endpoint  string
	Module    string
	Unit      string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

// Filter converts the criteria into a log.Filter.
func (c Criteria) Filter() (log.Filter, error) {
	filter := log.Filter{
		SessionID: c.SessionID,
		Endpoint:  c.Endpoint,
		Module:    c.Module,
		Unit:      c.Unit,
	}

	if c.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, c.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if c.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, c.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if c.Layer != "" {
		l, err := ParseLayerFlag(c.Layer)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Layer = &l
	}
	if c.Direction != "" {
		d, err := ParseDirectionFlag(c.Direction)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Direction = &d
	}
	if c.Category != "" {
		cat, err := ParseCategoryFlag(c.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &cat
	}
	return filter, nil
}

// eachEvent calls fn for every event in path matching filter.
func eachEvent(path string, filter log.Filter, fn func(log.Event) error) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

// eventType returns a short label for the payload an event carries.
func eventType(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "frame"
	case event.Message != nil:
		return strings.ToLower(event.Message.Type.String())
	case event.StateChange != nil:
		return "state"
	case event.Error != nil:
		return "error"
	default:
		return "unknown"
	}
}

func shortenSessionID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
