// Command audiograph plays a WAV or MP3 file through a spatialized panner
// node to the default output device, as a minimal demonstration of wiring
// a Source, a PannerNode, and a device.Sink into one Context.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dudk/audiograph"
	"github.com/dudk/audiograph/device"
	"github.com/dudk/audiograph/panner"
	sourcemp3 "github.com/dudk/audiograph/source/mp3"
	sourcewav "github.com/dudk/audiograph/source/wav"
)

const (
	successExitCode = 0
	errorExitCode   = 1
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("audiograph", flag.ContinueOnError)
	sampleRate := flags.Int("rate", 44100, "sample rate")
	azimuth := flags.Float64("x", 0, "source position X")
	if err := flags.Parse(args); err != nil {
		return errorExitCode
	}
	if flags.NArg() < 1 {
		fmt.Println("Usage: audiograph [-rate 44100] [-x 0] <file.wav|file.mp3>")
		return errorExitCode
	}
	path := flags.Arg(0)

	ctx, err := audiograph.NewContext(*sampleRate)
	if err != nil {
		fmt.Fprintln(os.Stderr, "audiograph: create context:", err)
		return errorExitCode
	}

	var sourceNode *audiograph.Node
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		src, err := sourcewav.Open(ctx, path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "audiograph: open wav:", err)
			return errorExitCode
		}
		defer src.Close()
		sourceNode = src.Underlying()
	case ".mp3":
		src, err := sourcemp3.Open(ctx, path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "audiograph: open mp3:", err)
			return errorExitCode
		}
		defer src.Close()
		sourceNode = src.Underlying()
	default:
		fmt.Fprintln(os.Stderr, "audiograph: unsupported file type:", path)
		return errorExitCode
	}

	pan := panner.New(ctx)
	pan.SetPosition(audiograph.Vec3{X: *azimuth, Y: 0, Z: -1})

	if err := sourceNode.Connect(pan.Underlying(), 0, 0); err != nil {
		fmt.Fprintln(os.Stderr, "audiograph: connect source to panner:", err)
		return errorExitCode
	}
	ctx.SetDestination(pan.Underlying())

	sink := device.NewSink(ctx, 2)
	if err := sink.Open(); err != nil {
		fmt.Fprintln(os.Stderr, "audiograph: open device:", err)
		return errorExitCode
	}
	defer sink.Close()

	fmt.Println("audiograph: playing", path, "- press Enter to stop")
	fmt.Scanln()

	return successExitCode
}
