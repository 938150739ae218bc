// Package prompt resolves the installation choices from the environment,
// falling back to interactive questions on standard input.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oshokin/oneclick/internal/banner"
	"github.com/oshokin/oneclick/internal/config"
	"github.com/oshokin/oneclick/internal/domain/host"
	"github.com/oshokin/oneclick/internal/logger"
)

// ErrNoInput is returned when standard input ends before a valid answer.
var ErrNoInput = errors.New("no input available")

const legacyCUDAQuestion = "Do you want to use CUDA 11.8 instead of 12.1?\n" +
	"Only choose this option if your GPU is very old (Kepler or older).\n\n" +
	"For RTX and GTX series GPUs, say \"N\".\n" +
	"If unsure, say \"N\".\n"

// Prompter asks questions on an output stream and reads answers line by line.
type Prompter struct {
	in  *bufio.Reader
	out *banner.Printer

	// pending is the read left running by a canceled question. The next
	// question takes its line instead of starting a second reader.
	pending chan lineResult
}

// New creates a Prompter reading from in.
func New(in io.Reader, out *banner.Printer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// ResolveGPU returns the vendor from GPU_CHOICE, or asks for it. An invalid
// GPU_CHOICE is an error; an invalid answer repeats the question.
func (p *Prompter) ResolveGPU(ctx context.Context, rc *config.RunContext) (host.GPUVendor, error) {
	if rc.GPUChoice != "" {
		vendor, err := host.ParseGPUChoice(rc.GPUChoice)
		if err != nil {
			return host.GPUUnresolved, fmt.Errorf("%s: %w", config.EnvGPUChoice, err)
		}

		logger.InfoKV(ctx, "GPU selected from environment", "gpu", vendor)

		return vendor, nil
	}

	p.out.Printf("\nWhat is your GPU?\n\n")

	for _, option := range host.GPUMenu() {
		p.out.Printf("%s) %s\n", option.Letter, option.Label)
	}

	p.out.Println()

	for {
		answer, err := p.readLine(ctx, "Input> ")
		if err != nil {
			return host.GPUUnresolved, err
		}

		if vendor, ok := menuVendor(answer); ok {
			return vendor, nil
		}

		p.out.Println("Invalid choice. Please try again.")
	}
}

// ResolveLegacyCUDA returns the USE_CUDA118 setting, or asks for it. An empty answer means no.
func (p *Prompter) ResolveLegacyCUDA(ctx context.Context, rc *config.RunContext) (bool, error) {
	if rc.UseCUDA118.IsSet() {
		return rc.UseCUDA118.Resolve(false), nil
	}

	p.out.Printf("\n%s\n", legacyCUDAQuestion)

	for {
		answer, err := p.readLine(ctx, "Input (Y/N)> ")
		if err != nil {
			return false, err
		}

		switch strings.ToUpper(strings.TrimSpace(strings.Trim(answer, `"'`))) {
		case "Y":
			return true, nil
		case "N", "":
			return false, nil
		}

		p.out.Println("Invalid choice. Please try again.")
	}
}

// menuVendor accepts only the menu letters.
func menuVendor(answer string) (host.GPUVendor, bool) {
	letter := strings.ToUpper(strings.TrimSpace(answer))

	for _, option := range host.GPUMenu() {
		if letter == option.Letter {
			return option.Vendor, true
		}
	}

	return host.GPUUnresolved, false
}

type lineResult struct {
	line string
	err  error
}

// readLine prints prompt and waits for one line or for ctx to be done.
func (p *Prompter) readLine(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.out.Printf("%s", prompt)

	if p.pending == nil {
		p.pending = make(chan lineResult, 1)

		// The reader cannot be interrupted, so after a cancel this goroutine
		// lives until the next line or EOF arrives.
		go func(results chan<- lineResult) {
			line, err := p.in.ReadString('\n')
			results <- lineResult{line: line, err: err}
		}(p.pending)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case result := <-p.pending:
		p.pending = nil

		line := strings.TrimRight(result.line, "\r\n")

		switch {
		case result.err == nil:
			return line, nil
		case errors.Is(result.err, io.EOF) && line != "":
			return line, nil
		case errors.Is(result.err, io.EOF):
			return "", ErrNoInput
		default:
			return "", fmt.Errorf("read input: %w", result.err)
		}
	}
}
