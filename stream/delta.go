package stream

import (
	"fmt"

	"github.com/hupe1980/agentrelay/core"
	"github.com/tidwall/gjson"
)

// Delta is one normalized streaming increment. An empty FinishReason means
// the stream continues.
type Delta struct {
	Text         string         `json:"text"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Usage        map[string]any `json:"usage,omitempty"`
}

// Terminal reports whether the delta carries a finish reason.
func (d Delta) Terminal() bool { return d.FinishReason != "" }

// NormalizeOpenAISSE parses the JSON payload of one OpenAI-compatible SSE
// frame. It returns nil when the frame carries neither content nor a finish
// reason (role preambles, keep-alives, usage-only chunks without choices).
func NormalizeOpenAISSE(data []byte) (*Delta, error) {
	d, _, err := normalizeOpenAI(data)
	return d, err
}

// NormalizeOllamaNDJSON parses one Ollama NDJSON line. A done frame yields a
// Delta with an empty Text and the done_reason as FinishReason.
func NormalizeOllamaNDJSON(data []byte) (*Delta, error) {
	d, _, err := normalizeOllama(data)
	return d, err
}

// Normalize dispatches frame to the normalizer matching its format.
func Normalize(frame core.Frame) (*Delta, error) {
	d, _, err := normalize(frame)
	return d, err
}

// normalize returns the delta and whether the frame ends the stream.
func normalize(frame core.Frame) (*Delta, bool, error) {
	switch frame.Format {
	case core.FormatOpenAISSE:
		return normalizeOpenAI(frame.Data)
	case core.FormatOllamaNDJSON:
		return normalizeOllama(frame.Data)
	default:
		return nil, false, core.NewError("stream.Normalize", core.ErrMalformedResponse,
			fmt.Sprintf("unknown frame format %d", frame.Format))
	}
}

func normalizeOpenAI(data []byte) (*Delta, bool, error) {
	if !gjson.ValidBytes(data) {
		return nil, false, malformed("stream.NormalizeOpenAISSE", data)
	}
	root := gjson.ParseBytes(data)
	choices := root.Get("choices")
	if !choices.IsArray() || len(choices.Array()) == 0 {
		return nil, false, nil
	}
	content := root.Get("choices.0.delta.content").String()
	finish := root.Get("choices.0.finish_reason").String()
	if content == "" && finish == "" {
		return nil, false, nil
	}
	d := &Delta{Text: content, FinishReason: finish}
	if usage := root.Get("usage"); usage.IsObject() {
		if m, ok := usage.Value().(map[string]any); ok {
			d.Usage = m
		}
	}
	return d, d.Terminal(), nil
}

func normalizeOllama(data []byte) (*Delta, bool, error) {
	if !gjson.ValidBytes(data) {
		return nil, false, malformed("stream.NormalizeOllamaNDJSON", data)
	}
	root := gjson.ParseBytes(data)
	if root.Get("done").Bool() {
		d := &Delta{FinishReason: root.Get("done_reason").String()}
		usage := map[string]any{}
		if v := root.Get("prompt_eval_count"); v.Exists() {
			usage["prompt_tokens"] = v.Int()
		}
		if v := root.Get("eval_count"); v.Exists() {
			usage["completion_tokens"] = v.Int()
		}
		if len(usage) > 0 {
			d.Usage = usage
		}
		return d, true, nil
	}
	return &Delta{Text: root.Get("response").String()}, false, nil
}

func malformed(op string, data []byte) error {
	const maxPreview = 64
	preview := string(data)
	if len(preview) > maxPreview {
		preview = preview[:maxPreview] + "..."
	}
	return core.NewError(op, core.ErrMalformedResponse, fmt.Sprintf("invalid json frame %q", preview))
}
