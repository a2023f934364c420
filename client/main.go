package main

import (
	"bufio"
	"flag"
	"log"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"

	"github.com/wfunc/codechallenge/game/gomoku"
	"github.com/wfunc/codechallenge/network"
)

// maxLineLength bounds lines read from the server. It must fit a full 50x50
// board, which is well past the server's own input limit.
const maxLineLength = 4 << 20

// A bot for the gomoku challenge: it logs in and plays a random empty cell
// every turn until the server closes the connection.
func main() {
	addr := flag.String("addr", "127.0.0.1:7654", "server address")
	username := flag.String("username", "bot", "player name")
	password := flag.String("password", "secret", "player password")
	maxLine := flag.Int("max-line", maxLineLength, "longest line accepted from the server, in bytes")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		log.Println("Interrupt received, closing connection.")
		conn.Close()
	}()

	if err := send(conn, network.TagAuth, network.Auth{Username: *username, Password: *password}); err != nil {
		log.Fatalf("Write error: %v", err)
	}
	log.Printf("Logged in to %s as %s", *addr, *username)

	framer := network.NewFramer(bufio.NewReader(conn), *maxLine)
	for {
		msg, err := framer.NextMessage()
		if err != nil {
			log.Println("Read error:", err)
			return
		}

		switch msg.Tag {
		case network.TagYourTurn:
			board, err := gomoku.DecodeBoard(msg.Body)
			if err != nil {
				log.Printf("Bad board: %v", err)
				return
			}
			x, y, ok := pick(board)
			if !ok {
				log.Println("Board is full, waiting")
				continue
			}
			if err := send(conn, network.TagMove, map[string]int{"x": x, "y": y}); err != nil {
				log.Println("Write error:", err)
				return
			}
		case network.TagGameOver, network.TagError:
			reason, _ := network.DecodeReason(msg.Body)
			log.Printf("<- %s: %s", msg.Tag, reason)
		}
	}
}

func pick(b *gomoku.Board) (x, y int, ok bool) {
	var free []int
	for i, c := range b.Cells {
		if c == "" {
			free = append(free, i)
		}
	}
	if len(free) == 0 {
		return 0, 0, false
	}
	i := free[rand.IntN(len(free))]
	return i % b.Width, i / b.Width, true
}

func send(conn net.Conn, tag string, body any) error {
	line, err := network.Encode(tag, body)
	if err != nil {
		return err
	}
	_, err = conn.Write(line)
	return err
}
