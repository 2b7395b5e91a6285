// Command emailprobe samples the start of a file or URL, reports which
// fields hold email addresses and prints a starter pipeline config.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"emailextract/internal/config"
	"emailextract/internal/probe"
)

var (
	flagSource    = flag.String("source", "", "file path or http(s) URL to sample")
	flagFormat    = flag.String("format", "csv", "input format: csv or json")
	flagBytes     = flag.Int64("bytes", 1<<20, "number of bytes to sample from the start of the input")
	flagRecords   = flag.Int("records", 1000, "maximum number of records to inspect")
	flagDelimiter = flag.String("delimiter", ",", "CSV field delimiter (single character)")
	flagName      = flag.String("name", "emails", "job and table name of the suggested config")
	flagBackend   = flag.String("backend", "postgres", "storage kind of the suggested config")
	flagInsecure  = flag.Bool("insecure", false, "skip TLS verification for https sources")
)

func main() {
	flag.Parse()
	if *flagSource == "" {
		fmt.Fprintln(os.Stderr, "emailprobe: -source is required")
		flag.Usage()
		os.Exit(2)
	}

	opt := probe.Options{
		Source:     sourceFor(*flagSource, *flagInsecure),
		Parser:     config.Parser{Kind: *flagFormat},
		MaxBytes:   *flagBytes,
		MaxRecords: *flagRecords,
		Name:       *flagName,
		Backend:    *flagBackend,
	}
	if *flagFormat == "csv" {
		opt.Parser.Options = config.Options{"comma": *flagDelimiter}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := probe.Probe(ctx, opt)
	if err != nil {
		log.Fatalf("probe: %v", err)
	}
	if res.Suggested == "" {
		log.Printf("no email addresses found in %d sampled records", res.Sampled)
	}
	if err := probe.Render(os.Stdout, opt, res); err != nil {
		log.Fatalf("render: %v", err)
	}
}

func sourceFor(s string, insecure bool) config.Source {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return config.Source{Kind: "http", HTTP: config.SourceHTTP{
			URL:                s,
			TimeoutSeconds:     60,
			MaxRetries:         2,
			InsecureSkipVerify: insecure,
		}}
	}
	return config.Source{Kind: "file", File: config.SourceFile{Path: strings.TrimPrefix(s, "file://")}}
}
