// Command ja4core computes JA4+ fingerprints from a packet capture,
// mirroring original_source/rust/ja4/src/lib.rs's Cli almost flag-for-flag:
// YAML output by default, JSON with -json, raw unhashed fingerprints
// alongside the hashes with -with-raw, peer wire order instead of
// lexicographic sorting with -original-order.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/netfprint/ja4core/internal/canon"
	"github.com/netfprint/ja4core/pkg/dissect"
	"github.com/netfprint/ja4core/pkg/live"
	"github.com/netfprint/ja4core/pkg/store"
	"github.com/netfprint/ja4core/pkg/stream"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "ja4core: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr *os.File) error {
	fs := flag.NewFlagSet("ja4core", flag.ContinueOnError)
	fs.SetOutput(stderr)

	jsonOut := fs.Bool("json", false, "JSON output (default is YAML)")
	withRaw := fs.Bool("with-raw", false, "include raw (unhashed) fingerprint material in the output")
	originalOrder := fs.Bool("original-order", false, "preserve peer wire order instead of sorting JA4 ciphers/extensions before hashing")
	withPacketNumbers := fs.Bool("with-packet-numbers", false, "log the packet number alongside every per-packet parse error (for debugging)")
	mongoURI := fs.String("mongo-uri", "", "MongoDB URI to persist flow records to (disabled if empty)")
	mongoDB := fs.String("mongo-db", "ja4core", "MongoDB database name")
	mongoCollection := fs.String("mongo-collection", "flows", "MongoDB collection name")
	liveAddr := fs.String("live-addr", "", "if set, serve a websocket live-tail of finalized records on this address (e.g. 127.0.0.1:8088)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected exactly one capture file argument, got %d", fs.NArg())
	}
	pcapPath := fs.Arg(0)

	// pkg/stream logs the packet number on every malformed-field error it
	// skips; without -with-packet-numbers those debugging lines are
	// discarded, matching the original CLI's framing of pkt_* info as
	// debug-only.
	if !*withPacketNumbers {
		log.SetOutput(io.Discard)
	}

	sortMode := canon.Sorted
	if *originalOrder {
		sortMode = canon.Original
	}
	streams := stream.New(*withRaw, sortMode)

	var hub *live.Hub
	if *liveAddr != "" {
		hub = live.NewHub()
		mux := http.NewServeMux()
		mux.Handle("/live", hub)
		go func() {
			if err := http.ListenAndServe(*liveAddr, mux); err != nil {
				fmt.Fprintf(stderr, "ja4core: live server on %s: %v\n", *liveAddr, err)
			}
		}()
		defer hub.Close()
	}

	var dbStore *store.Store
	if *mongoURI != "" {
		ctx := context.Background()
		s, err := store.Connect(ctx, *mongoURI, *mongoDB, *mongoCollection)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer s.Close(ctx)
		dbStore = s
	}

	if err := dissect.Run(pcapPath, streams.Update); err != nil {
		return fmt.Errorf("dissect %s: %w", pcapPath, err)
	}

	records := streams.Finalize()
	observedAt := time.Now().Unix()
	for _, rec := range records {
		if dbStore != nil {
			if err := dbStore.Save(context.Background(), rec, observedAt); err != nil {
				fmt.Fprintf(stderr, "ja4core: save record: %v\n", err)
			}
		}
		if hub != nil {
			hub.Broadcast(rec)
		}
	}

	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	yenc := yaml.NewEncoder(stdout)
	if err := yenc.Encode(records); err != nil {
		return err
	}
	return yenc.Close()
}
