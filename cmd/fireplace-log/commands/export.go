package commands

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/armish/fireplace/pkg/log"
)

// Export formats.
const (
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

var csvHeader = []string{
	"timestamp", "session_id", "direction", "layer", "category",
	"endpoint", "module", "unit", "type", "action", "method", "params", "is_error",
}

// RunExport writes the events in path matching filter to w in format.
func RunExport(path, format string, filter log.Filter, w io.Writer) error {
	switch format {
	case FormatJSONL:
		return exportJSONL(path, filter, w)
	case FormatCSV:
		return exportCSV(path, filter, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

// jsonRecord is the JSONL form of an event. Enumerations are written by name.
type jsonRecord struct {
	Timestamp  string `json:"timestamp"`
	SessionID  string `json:"session_id"`
	Direction  string `json:"direction"`
	Layer      string `json:"layer"`
	Category   string `json:"category"`
	Type       string `json:"type"`
	Endpoint   string `json:"endpoint,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	Module     string `json:"module,omitempty"`
	Unit       string `json:"unit,omitempty"`

	Frame   *jsonFrame   `json:"frame,omitempty"`
	Message *jsonMessage `json:"message,omitempty"`
	State   *jsonState   `json:"state,omitempty"`
	Error   *jsonError   `json:"error,omitempty"`
}

type jsonFrame struct {
	Size      int    `json:"size"`
	Data      []byte `json:"data,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

type jsonMessage struct {
	Type               string `json:"type"`
	Action             string `json:"action,omitempty"`
	Method             string `json:"method,omitempty"`
	ParamCount         int    `json:"params"`
	IsError            bool   `json:"is_error,omitempty"`
	Result             any    `json:"result,omitempty"`
	ProcessingTimeNano *int64 `json:"processing_time_ns,omitempty"`
}

type jsonState struct {
	Entity   string `json:"entity"`
	OldState string `json:"old_state,omitempty"`
	NewState string `json:"new_state"`
	Reason   string `json:"reason,omitempty"`
}

type jsonError struct {
	Layer   string `json:"layer"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal,omitempty"`
	Context string `json:"context,omitempty"`
}

func newJSONRecord(event log.Event) jsonRecord {
	rec := jsonRecord{
		Timestamp:  event.Timestamp.UTC().Format(timestampFormat),
		SessionID:  event.SessionID,
		Direction:  event.Direction.String(),
		Layer:      event.Layer.String(),
		Category:   event.Category.String(),
		Type:       eventType(event),
		Endpoint:   event.Endpoint,
		RemoteAddr: event.RemoteAddr,
		Module:     event.Module,
		Unit:       event.Unit,
	}

	if f := event.Frame; f != nil {
		rec.Frame = &jsonFrame{Size: f.Size, Data: f.Data, Truncated: f.Truncated}
	}
	if m := event.Message; m != nil {
		msg := &jsonMessage{
			Type:       m.Type.String(),
			Method:     m.Method,
			ParamCount: m.ParamCount,
			IsError:    m.IsError,
			Result:     m.Result,
		}
		if m.Type != log.MessageTypeItem {
			msg.Action = m.Action.String()
		}
		if m.ProcessingTime != nil {
			ns := m.ProcessingTime.Nanoseconds()
			msg.ProcessingTimeNano = &ns
		}
		rec.Message = msg
	}
	if sc := event.StateChange; sc != nil {
		rec.State = &jsonState{
			Entity:   sc.Entity.String(),
			OldState: sc.OldState,
			NewState: sc.NewState,
			Reason:   sc.Reason,
		}
	}
	if e := event.Error; e != nil {
		rec.Error = &jsonError{
			Layer:   e.Layer.String(),
			Message: e.Message,
			Fatal:   e.Fatal,
			Context: e.Context,
		}
	}
	return rec
}

func exportJSONL(path string, filter log.Filter, w io.Writer) error {
	encoder := json.NewEncoder(w)
	return eachEvent(path, filter, func(event log.Event) error {
		if err := encoder.Encode(newJSONRecord(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

func exportCSV(path string, filter log.Filter, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	err := eachEvent(path, filter, func(event log.Event) error {
		var act, method, params, isError string
		if msg := event.Message; msg != nil {
			if msg.Type != log.MessageTypeItem {
				act = msg.Action.String()
				method = msg.Method
			}
			params = strconv.Itoa(msg.ParamCount)
			isError = strconv.FormatBool(msg.IsError)
		}

		row := []string{
			event.Timestamp.UTC().Format(timestampFormat),
			event.SessionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.Endpoint,
			event.Module,
			event.Unit,
			eventType(event),
			act,
			method,
			params,
			isError,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}
