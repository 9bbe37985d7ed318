// Agora CLI - command line client for the Agora agent relay
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agora-protocol/relay/clients/go/agora"
	"github.com/agora-protocol/relay/internal/crypto"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("AGORA_URL")
	if baseURL == "" {
		baseURL = agora.DefaultBaseURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := agora.NewClient(baseURL)
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "keygen":
		exitOnError(client.GenerateKeypair())
		exitOnError(client.SaveConfig())
		fmt.Printf("Public key: %s\n", client.PublicKey)

	case "connect":
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, "Usage: agora connect <name>")
			os.Exit(1)
		}
		resp, err := client.Connect(ctx, args[0], nil)
		exitOnError(err)
		fmt.Printf("Connected as %q (token expires %s)\n", args[0], resp.ExpiresAt.Local().Format(time.RFC1123))
		fmt.Printf("Public key: %s\n", client.PublicKey)
		printPeers(resp.Peers)

	case "peers":
		peers, err := client.Peers(ctx)
		exitOnError(err)
		printPeers(peers)

	case "send":
		fs := flag.NewFlagSet("send", flag.ExitOnError)
		msgType := fs.String("type", "publish", "message type")
		replyTo := fs.String("reply-to", "", "envelope id being answered")
		sealed := fs.Bool("sealed", false, "encrypt the message for the recipient")
		fs.Parse(args)
		if fs.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: agora send [-type t] [-reply-to id] [-sealed] <public_key> <message>")
			os.Exit(1)
		}
		to, text := fs.Arg(0), strings.Join(fs.Args()[1:], " ")

		var (
			resp *agora.SendResponse
			err  error
		)
		if *sealed {
			resp, err = client.SendSealed(ctx, to, *msgType, []byte(text), *replyTo)
		} else {
			resp, err = client.Send(ctx, agora.SendRequest{
				To:        to,
				Type:      *msgType,
				Payload:   map[string]string{"text": text},
				InReplyTo: *replyTo,
			})
		}
		exitOnError(err)
		fmt.Printf("Sent: %s\n", resp.EnvelopeID)

	case "poll":
		fs := flag.NewFlagSet("poll", flag.ExitOnError)
		since := fs.Int64("since", 0, "only messages after this Unix ms timestamp")
		follow := fs.Bool("follow", false, "keep polling for new messages")
		interval := fs.Duration("interval", 3*time.Second, "poll interval with -follow")
		fs.Parse(args)
		exitOnError(poll(ctx, client, *since, *follow, *interval))

	case "disconnect":
		exitOnError(client.Disconnect(ctx))
		fmt.Println("Disconnected")

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// poll prints messages, advancing since to the newest timestamp seen so
// that no message is printed twice.
func poll(ctx context.Context, client *agora.Client, since int64, follow bool, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for {
			messages, err := client.Poll(ctx, since, 0)
			if err != nil {
				return err
			}
			for _, msg := range messages {
				printMessage(client, msg)
				if msg.Timestamp > since {
					since = msg.Timestamp
				}
			}
			// A short page means the mailbox is drained.
			if len(messages) < 50 {
				break
			}
		}

		if !follow {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printMessage(client *agora.Client, msg agora.Envelope) {
	ts := time.UnixMilli(msg.Timestamp).Format("2006-01-02 15:04:05")
	from := msg.FromName
	if from == "" {
		from = shortKey(msg.From)
	}

	body := string(msg.Payload)
	if agora.IsSealed(msg.Payload) {
		if plaintext, err := client.Open(msg); err == nil {
			body = "[sealed] " + string(plaintext)
		} else {
			body = "[sealed, cannot open]"
		}
	}

	reply := ""
	if msg.InReplyTo != "" {
		reply = " re:" + msg.InReplyTo
	}
	fmt.Printf("[%s] %s (%s) %s%s: %s\n", ts, from, msg.Type, msg.ID, reply, body)
}

func printPeers(peers []agora.Peer) {
	if len(peers) == 0 {
		fmt.Println("No other agents online")
		return
	}
	for _, p := range peers {
		seen := time.UnixMilli(p.LastSeen).Format("15:04:05")
		fmt.Printf("  %-20s %s  (seen %s)\n", p.Name, p.PublicKey, seen)
	}
}

// shortKey drops the DER prefix shared by every Ed25519 key.
func shortKey(key string) string {
	key = strings.TrimPrefix(key, crypto.PublicKeyPrefix+"300506032b6570032100")
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

func usage() {
	fmt.Println(`Agora CLI - agent relay client

Usage: agora <command> [options]

Commands:
  keygen                          Generate and save a new identity
  connect <name>                  Register and start a session
  peers                           List online agents
  send <public_key> <message>     Send a message (-type, -reply-to, -sealed)
  poll                            Print new messages (-since, -follow, -interval)
  disconnect                      End the session
  health                          Check relay health

Environment:
  AGORA_URL      Relay URL (default: http://localhost:8080)
  AGORA_CONFIG   Config directory (default: ~/.agora)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
