package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	inkling "github.com/greyfriar/inkling"
)

// client sends one JSON message per connection to the daemon socket,
// mirroring how the editor plugin talks to inklingd.
type client struct {
	sockPath string
}

func newClient(sockPath string) *client {
	if sockPath == "" {
		sockPath = resolveSocketPath()
	}
	return &client{sockPath: sockPath}
}

func resolveSocketPath() string {
	if path := os.Getenv("INKLING_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/inkling.sock"
	}
	return fmt.Sprintf("/tmp/inkling-%d.sock", os.Getuid())
}

// roundTrip writes msg as one line and decodes the one-line reply.
func (c *client) roundTrip(msg, reply any) error {
	conn, err := net.Dial("unix", c.sockPath)
	if err != nil {
		return fmt.Errorf("cannot reach inklingd at %s (is it running?): %w", c.sockPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return err
		}
		return fmt.Errorf("daemon closed the connection without replying")
	}
	return json.Unmarshal(scanner.Bytes(), reply)
}

func (c *client) assist(req *inkling.Request) (*inkling.Response, error) {
	var resp inkling.Response
	if err := c.roundTrip(req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	return &resp, nil
}

func (c *client) command(action string) (*inkling.CommandResponse, error) {
	var resp inkling.CommandResponse
	if err := c.roundTrip(&inkling.CommandRequest{Type: "command", Action: action}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	return &resp, nil
}
