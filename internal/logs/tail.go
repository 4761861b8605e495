package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const pollInterval = 250 * time.Millisecond

// TailOptions controls a single Tail call. A negative Offset selects the last
// Limit lines of the file; a non-negative Offset reads forward from that byte.
// When Wait is positive and no complete lines are available yet, Tail blocks
// up to Wait for new data before returning.
type TailOptions struct {
	Offset int64
	Limit  int
	Wait   time.Duration
}

// TailResult carries the decoded lines and the offset to pass to the next
// call.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads complete lines from the log file at path. A missing file is not
// an error: the result is empty with offset zero so follow loops keep polling
// until the daemon creates the file.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	if opts.Wait < 0 {
		opts.Wait = 0
	}

	result, err := read(path, opts.Offset, opts.Limit)
	if err != nil || len(result.Lines) > 0 || opts.Wait == 0 {
		return result, err
	}

	deadline := time.Now().Add(opts.Wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}

		result, err = read(path, result.Offset, 0)
		if err != nil || len(result.Lines) > 0 {
			return result, err
		}
		if time.Now().After(deadline) {
			return result, nil
		}
	}
}

func read(path string, offset int64, limit int) (TailResult, error) {
	result := TailResult{Offset: offset}
	if result.Offset < 0 {
		result.Offset = 0
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Offset = 0
			return result, nil
		}
		return result, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	size := info.Size()

	if offset < 0 {
		return tailLast(file, size, limit)
	}
	if offset > size {
		// The current-log pointer was re-targeted at a shorter file;
		// restart from the top instead of silently skipping it.
		offset = 0
	}
	return readForward(file, offset)
}

func tailLast(file *os.File, size int64, limit int) (TailResult, error) {
	if limit <= 0 {
		return TailResult{Offset: size}, nil
	}

	scanner := newLineScanner(file)
	ring := make([]string, limit)
	count, next := 0, 0
	for scanner.Scan() {
		ring[next] = scanner.Text()
		next = (next + 1) % limit
		if count < limit {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return TailResult{}, fmt.Errorf("read log file: %w", err)
	}

	lines := make([]string, count)
	if count == limit {
		for i := range lines {
			lines[i] = ring[(next+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}

	return TailResult{Lines: lines, Offset: size}, nil
}

func readForward(file *os.File, offset int64) (TailResult, error) {
	result := TailResult{Offset: offset}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return result, fmt.Errorf("seek log file: %w", err)
	}

	scanner := newLineScanner(file)
	for scanner.Scan() {
		result.Lines = append(result.Lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("read log file: %w", err)
	}

	pos, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return result, fmt.Errorf("determine log offset: %w", err)
	}
	result.Offset = pos
	return result, nil
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}
