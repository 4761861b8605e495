package logging_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/Salamek/netkeeper/internal/logging"
)

func TestTeeHandlerHonorsPerHandlerLevels(t *testing.T) {
	var fileBuf, stdoutBuf bytes.Buffer

	fileHandler := slog.NewTextHandler(&fileBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	stdoutHandler := slog.NewTextHandler(&stdoutBuf, &slog.HandlerOptions{Level: slog.LevelError})

	logger := slog.New(logging.TeeHandler(fileHandler, stdoutHandler))
	logger.Info("routine tick")
	logger.Error("modem unreachable")

	if !strings.Contains(fileBuf.String(), "routine tick") {
		t.Fatalf("file handler missing info line: %q", fileBuf.String())
	}
	if !strings.Contains(fileBuf.String(), "modem unreachable") {
		t.Fatalf("file handler missing error line: %q", fileBuf.String())
	}
	if strings.Contains(stdoutBuf.String(), "routine tick") {
		t.Fatalf("error-only handler received info line: %q", stdoutBuf.String())
	}
	if !strings.Contains(stdoutBuf.String(), "modem unreachable") {
		t.Fatalf("error-only handler missing error line: %q", stdoutBuf.String())
	}
}

func TestTeeLoggerDuplicatesIntoExtraHandlers(t *testing.T) {
	var primary, secondary bytes.Buffer

	base := slog.New(slog.NewTextHandler(&primary, nil))
	logger := logging.TeeLogger(base, slog.NewTextHandler(&secondary, nil))

	logger.Info("shared line")

	if !strings.Contains(primary.String(), "shared line") {
		t.Fatalf("base handler missing line: %q", primary.String())
	}
	if !strings.Contains(secondary.String(), "shared line") {
		t.Fatalf("extra handler missing line: %q", secondary.String())
	}
}

func TestTeeHandlerSkipsNilHandlers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.TeeHandler(nil, slog.NewTextHandler(&buf, nil), nil))
	logger.Info("survives")
	if !strings.Contains(buf.String(), "survives") {
		t.Fatalf("expected line in %q", buf.String())
	}
}

func TestNewNopDiscardsEverything(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("goes nowhere", logging.Error(nil))
}
