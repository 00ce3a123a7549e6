package main

import (
	"context"
	"net"

	"github.com/rs/zerolog"

	"github.com/webriots/nanoio"
)

// server echoes every byte it receives back to the sender.
type server struct {
	ln       *nanoio.Socket
	readSize int
	maxConns int
	log      zerolog.Logger
}

// serve accepts connections and spawns a handler task for each. It
// returns after maxConns connections when maxConns is positive.
func (s *server) serve(ctx context.Context) (any, error) {
	for n := 0; s.maxConns == 0 || n < s.maxConns; n++ {
		client, addr, err := nanoio.Accept(ctx, s.ln)
		if err != nil {
			return nil, err
		}

		if err := client.SetNonblock(true); err != nil {
			s.log.Warn().Err(err).Msg("dropping connection")
			_ = client.Close()
			continue
		}

		if _, err := nanoio.Spawn(ctx, s.handle(client, addr)); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return nil, nil
}

func (s *server) handle(client *nanoio.Socket, addr net.Addr) nanoio.Func {
	return func(ctx context.Context) (any, error) {
		defer client.Close()

		log := s.log.With().Stringer("peer", addr).Logger()
		log.Debug().Msg("connection opened")

		for {
			data, err := nanoio.Recv(ctx, client, s.readSize)
			if err != nil {
				log.Debug().Err(err).Msg("connection failed")
				return nil, err
			}
			if len(data) == 0 {
				log.Debug().Msg("connection closed")
				return nil, nil
			}
			if err := nanoio.SendAll(ctx, client, data); err != nil {
				log.Debug().Err(err).Msg("connection failed")
				return nil, err
			}
		}
	}
}
