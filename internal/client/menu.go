package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/framerelay/relay/internal/model"
)

// Menu is the interactive front end of a Client. Input is read as
// whitespace-separated tokens, so a scripted session can feed
// "1 localhost 8080 2 3 4" on one line.
type Menu struct {
	Client *Client
	In     io.Reader
	Out    io.Writer

	// Interactive prints the menu and input prompts. Status messages are
	// always printed.
	Interactive bool
}

// Run processes menu choices until exit, end of input or ctx cancellation.
// The client is closed before Run returns.
func (m *Menu) Run(ctx context.Context) error {
	defer m.Client.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sc := bufio.NewScanner(m.In)
	sc.Split(bufio.ScanWords)

	tokens := make(chan string)
	go func() {
		defer close(tokens)
		for sc.Scan() {
			select {
			case tokens <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	next := func(prompt string) (string, bool) {
		if m.Interactive && prompt != "" {
			fmt.Fprint(m.Out, prompt)
		}
		select {
		case tok, ok := <-tokens:
			return tok, ok
		case <-ctx.Done():
			return "", false
		}
	}

	for {
		if m.Interactive {
			m.printMenu()
		}
		choice, ok := next("Enter your choice: ")
		if !ok {
			return ctx.Err()
		}

		switch choice {
		case "1":
			host, ok := next("Enter server host: ")
			if !ok {
				return ctx.Err()
			}
			port, ok := next("Enter server port: ")
			if !ok {
				return ctx.Err()
			}
			m.connect(ctx, host, port)
		case "2":
			m.startCapture()
		case "3":
			m.stopCapture()
		case "4":
			fmt.Fprintln(m.Out, "Exiting...")
			return nil
		default:
			fmt.Fprintln(m.Out, "Invalid choice. Please try again.")
		}
	}
}

func (m *Menu) printMenu() {
	fmt.Fprintln(m.Out, "\n--- Menu ---")
	fmt.Fprintln(m.Out, "1. Connect to server")
	fmt.Fprintln(m.Out, "2. Start capture")
	fmt.Fprintln(m.Out, "3. Stop capture")
	fmt.Fprintln(m.Out, "4. Exit")
}

func (m *Menu) connect(ctx context.Context, host, port string) {
	target := net.JoinHostPort(host, port)
	fmt.Fprintf(m.Out, "Attempting to connect to %s...\n", target)

	err := m.Client.Connect(ctx, target)
	switch {
	case err == nil:
		fmt.Fprintf(m.Out, "Connected to %s\n", target)
	case errors.Is(err, model.ErrAlreadyConnected):
		fmt.Fprintln(m.Out, "Already connected.")
	default:
		fmt.Fprintf(m.Out, "Connection failed: %v\n", err)
	}

	if m.Client.IsConnected() {
		fmt.Fprintln(m.Out, "Status: Connected")
	} else {
		fmt.Fprintln(m.Out, "Status: Not connected")
	}
}

func (m *Menu) startCapture() {
	err := m.Client.StartCapture()
	switch {
	case err == nil:
		fmt.Fprintln(m.Out, "Capture started.")
	case errors.Is(err, model.ErrNotConnected):
		fmt.Fprintln(m.Out, "Not connected to server. Please connect first.")
	case errors.Is(err, model.ErrAlreadyCapturing):
		fmt.Fprintln(m.Out, "Capture is already running.")
	default:
		fmt.Fprintf(m.Out, "Capture failed: %v\n", err)
	}
}

func (m *Menu) stopCapture() {
	err := m.Client.StopCapture()
	switch {
	case err == nil:
		fmt.Fprintln(m.Out, "Capture stopped.")
	case errors.Is(err, model.ErrNotCapturing):
		fmt.Fprintln(m.Out, "Capture is not running.")
	default:
		fmt.Fprintf(m.Out, "Stop capture failed: %v\n", err)
	}
}
