package session

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/ctagard/jdwp-mcp/internal/errors"
	"github.com/ctagard/jdwp-mcp/internal/jdwp"
	"github.com/ctagard/jdwp-mcp/pkg/types"
)

const stringSignature = "Ljava/lang/String;"

// maxStringLength caps string values shown to callers.
const maxStringLength = 256

// objectValue is implemented by every object mirror.
type objectValue interface {
	ID() jdwp.ObjectID
	ReferenceType(ctx context.Context) (*jdwp.TypeMirror, error)
}

// formatValue returns the type name and display text of v. Objects show as
// Type@id; failures to describe them degrade to the mirror's own string.
func formatValue(ctx context.Context, v jdwp.Value) (typeName, text string) {
	switch v := v.(type) {
	case nil:
		return "", ""
	case jdwp.NullValue:
		return "null", "null"
	case *jdwp.StringMirror:
		str, err := v.Value(ctx)
		if err != nil {
			return "java.lang.String", v.String()
		}
		if len(str) > maxStringLength {
			str = str[:maxStringLength] + "..."
		}
		return "java.lang.String", strconv.Quote(str)
	case *jdwp.ArrayMirror:
		typeName = arrayTypeName(ctx, v)
		n, err := v.Length(ctx)
		if err != nil {
			return typeName, fmt.Sprintf("%s@%d", typeName, v.ID())
		}
		return typeName, fmt.Sprintf("%s@%d (length %d)", typeName, v.ID(), n)
	case objectValue:
		t, err := v.ReferenceType(ctx)
		if err != nil {
			return "", fmt.Sprint(v)
		}
		name, err := t.Name(ctx)
		if err != nil {
			return "", fmt.Sprint(v)
		}
		return name, fmt.Sprintf("%s@%d", name, v.ID())
	}
	return jdwp.SignatureToName(string(rune(v.Tag()))), fmt.Sprint(v)
}

func arrayTypeName(ctx context.Context, a *jdwp.ArrayMirror) string {
	t, err := a.ReferenceType(ctx)
	if err != nil {
		return "array"
	}
	name, err := t.Name(ctx)
	if err != nil {
		return "array"
	}
	return name
}

// unquote strips Java-style double quotes from a string literal.
func unquote(text string) string {
	if s, err := strconv.Unquote(text); err == nil && strings.HasPrefix(text, `"`) {
		return s
	}
	return text
}

// describeFrame resolves a frame's location into names and a line. Source
// information is optional; classes without it still describe.
func describeFrame(ctx context.Context, f *jdwp.StackFrame) (types.StackFrame, error) {
	sf := types.StackFrame{Index: f.Depth, Line: -1}
	loc := f.Location
	if loc.IsZero() {
		return sf, nil
	}

	name, err := loc.Type.Name(ctx)
	if err != nil {
		return sf, err
	}
	sf.Class = name

	m, err := loc.Method(ctx)
	if err != nil {
		return sf, err
	}
	if m != nil {
		sf.Method = m.Name
	}

	if src, err := loc.Type.SourceFile(ctx); err == nil {
		sf.Source = src
	} else if !jdwp.IsRemote(err, jdwp.ErrAbsentInformation) {
		return sf, err
	}

	if line, err := loc.Line(ctx); err == nil {
		sf.Line = line
	} else if !jdwp.IsRemote(err, jdwp.ErrAbsentInformation) {
		return sf, err
	}
	return sf, nil
}

// eventKinds names the events reported to callers.
var eventKinds = map[jdwp.EventKind]string{
	jdwp.Breakpoint:     "breakpoint",
	jdwp.SingleStep:     "step",
	jdwp.Exception:      "exception",
	jdwp.VMStart:        "vm_start",
	jdwp.VMDeath:        "vm_death",
	jdwp.VMDisconnected: "disconnected",
}

// describeEvent converts a stop or end event to its caller-facing form.
// Other events are not reported.
func (s *Session) describeEvent(ctx context.Context, ev jdwp.Event) (types.EventInfo, bool) {
	kind, ok := eventKinds[ev.Kind()]
	if !ok {
		return types.EventInfo{}, false
	}
	info := types.EventInfo{Kind: kind}

	if t := jdwp.EventThread(ev); t != nil {
		info.ThreadID = uint64(t.ID())
		if name, err := t.Name(ctx); err == nil {
			info.ThreadName = name
		}
	}

	if loc := jdwp.EventLocation(ev); !loc.IsZero() {
		fr, err := describeFrame(ctx, &jdwp.StackFrame{Location: loc})
		if err != nil {
			s.log.WithError(err).Debug("failed to describe event location")
		}
		info.Class, info.Method, info.Line = fr.Class, fr.Method, fr.Line
	}

	switch e := ev.(type) {
	case *jdwp.BreakpointEvent:
		info.Breakpoint = s.breakpointFor(e.Request())
	case *jdwp.ExceptionEvent:
		info.Exception, _ = formatValue(ctx, e.Exception)
		info.Caught = !e.CatchLocation.IsZero()
	}
	return info, true
}

// threadError maps a failed thread command to a caller-facing error.
func threadError(threadID uint64, err error) error {
	switch {
	case jdwp.IsRemote(err, jdwp.ErrInvalidThread), jdwp.IsRemote(err, jdwp.ErrInvalidObject):
		return errors.ThreadNotFound(threadID).WithCause(err)
	case jdwp.IsRemote(err, jdwp.ErrThreadNotSuspended):
		return errors.Wrap(errors.CodeInvalidParameter,
			fmt.Sprintf("thread %d is not suspended", threadID),
			"Frames are only available while a thread is suspended. Use jdwp_suspend or wait for a breakpoint with jdwp_wait_event.",
			err)
	}
	return err
}

func typeKind(tag jdwp.TypeTag) string {
	return strings.ToLower(tag.String())
}

func classStatus(st jdwp.ClassStatus) string {
	switch {
	case st&jdwp.StatusError != 0:
		return "error"
	case st&jdwp.StatusInitialized != 0:
		return "initialized"
	case st&jdwp.StatusPrepared != 0:
		return "prepared"
	case st&jdwp.StatusVerified != 0:
		return "verified"
	}
	return ""
}

// matchesFilter reports whether a class name matches a filter: a glob when
// it contains '*', otherwise a case-insensitive substring.
func matchesFilter(name, filter string) bool {
	if filter == "" {
		return true
	}
	if strings.Contains(filter, "*") {
		ok, _ := path.Match(strings.ReplaceAll(filter, ".", "/"), strings.ReplaceAll(name, ".", "/"))
		return ok
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(filter))
}
