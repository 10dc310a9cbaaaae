package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xiaot623/gogo/consult/internal/transport/ws"
)

func newChatCmd(v *viper.Viper) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive consultation session over WebSocket",
		Long:  "chat reads one symptom description per line and prints the ranked conditions for each. Type /quit or send EOF to leave.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newClientFromConfig(v)
			conn, err := client.DialChat(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			return runChat(conn, cmd.InOrStdin(), cmd.OutOrStdout(), userID, v.GetDuration("timeout"))
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "consult on behalf of this user (admin only)")
	return cmd
}

func runChat(conn *websocket.Conn, in io.Reader, out io.Writer, userID string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	fmt.Fprintln(out, "Describe your symptoms (/quit to exit).")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		requestID := uuid.NewString()
		msg := ws.ConsultMessage{
			BaseMessage: ws.BaseMessage{
				Type:      ws.TypeConsult,
				Ts:        time.Now().UnixMilli(),
				RequestID: requestID,
			},
			Message: line,
			UserID:  userID,
		}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("send: %w", err)
		}

		frame, err := awaitReply(conn, requestID, timeout)
		if err != nil {
			return err
		}
		switch frame.Type {
		case ws.TypeResult:
			if frame.Response != nil {
				if err := renderResponse(out, frame.Response); err != nil {
					return err
				}
			}
		case ws.TypeError:
			fmt.Fprintf(out, "error: %s (%d): %s [requestId=%s]\n", frame.Error.Kind, frame.Status, frame.Error.Message, frame.RequestID)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}

// awaitReply reads frames until one answers requestID.
func awaitReply(conn *websocket.Conn, requestID string, timeout time.Duration) (*chatFrame, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	defer conn.SetReadDeadline(time.Time{})

	for {
		var frame chatFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if frame.RequestID == requestID || frame.RequestID == "" {
			return &frame, nil
		}
	}
}
