// Command evstream pushes a synthetic event stream through a two layer network.
// It writes an animated GIF of the last layer, per-call statistics as CSV, and
// optionally serves the first layer as MJPEG together with a websocket feed of
// the statistics.
package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/gorgonia/evconv"
	"github.com/gorgonia/evconv/dense"
	"github.com/gorgonia/evconv/encoding/gif"
	"github.com/gorgonia/evconv/encoding/mjpeg"
	"github.com/gorgonia/evconv/rulebook"
)

var (
	height   = flag.Int("height", 32, "sensor height")
	width    = flag.Int("width", 32, "sensor width")
	frames   = flag.Int("frames", 100, "number of frames to process")
	dots     = flag.Int("dots", 3, "number of moving dots")
	ttl      = flag.Int("ttl", 5, "frames a pixel stays lit after a dot passed")
	hidden   = flag.Int("hidden", 8, "channels of the first layer")
	seed     = flag.Int64("seed", 1337, "random seed")
	gifOut   = flag.String("gif", "evstream.gif", "animated GIF of the last layer, empty to skip")
	statsOut = flag.String("stats", "evstream.csv", "CSV statistics, empty to skip")
	dotOut   = flag.String("dot", "", "Graphviz dump of the last rule book update")
	params   = flag.String("params", "", "prefix of gob parameter files <prefix>.<layer>.gob to load")
	save     = flag.String("save", "", "prefix to save the parameters under")
	serve    = flag.String("serve", "", "address to serve /stream (MJPEG) and /ws (statistics) on")
	delay    = flag.Duration("delay", 0, "pause between frames")
	verbose  = flag.Bool("v", false, "print each layer's execution log")
)

func randomize(l *evconv.Layer, r *rand.Rand) error {
	weights := dense.New(l.FilterVolume(), l.NIn*l.NOut)
	for i := range weights.Data() {
		weights.Data()[i] = float32(r.NormFloat64()) * 0.3
	}
	bias := make([]float32, l.NOut)
	for i := range bias {
		bias[i] = float32(r.NormFloat64()) * 0.1
	}
	return l.SetParameters(bias, weights)
}

func paramFile(prefix, layer string) string { return fmt.Sprintf("%s.%s.gob", prefix, layer) }

func load(l *evconv.Layer, prefix string) error {
	f, err := os.Open(paramFile(prefix, l.Name()))
	if err != nil {
		return err
	}
	defer f.Close()
	return l.LoadParameters(f)
}

func store(l *evconv.Layer, prefix string) error {
	f, err := os.Create(paramFile(prefix, l.Name()))
	if err != nil {
		return err
	}
	if err = l.SaveParameters(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func main() {
	flag.Parse()

	stats := evconv.MakeStatistics()
	ws := newFeed()
	first := evconv.DefaultConf(1, *hidden)
	first.FirstLayer = true
	confs := []evconv.Config{first, evconv.DefaultConf(*hidden, 2)}

	r := rand.New(rand.NewSource(*seed))
	layers := make([]*evconv.Layer, len(confs))
	for i, conf := range confs {
		l, err := evconv.New(conf,
			evconv.WithName(fmt.Sprintf("layer%d", i)),
			evconv.WithObserver(stats),
			evconv.WithObserver(ws),
			evconv.WithLogging(*verbose),
		)
		if err != nil {
			log.Fatal(err)
		}
		if *params != "" {
			err = load(l, *params)
		} else {
			err = randomize(l, r)
		}
		if err != nil {
			log.Fatalf("%+v", err)
		}
		layers[i] = l
	}
	if *save != "" {
		for _, l := range layers {
			if err := store(l, *save); err != nil {
				log.Fatalf("%+v", err)
			}
		}
	}

	book := rulebook.New()
	net, err := evconv.NewNetwork(book, layers...)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	var encs []evconv.OutputEncoder
	var gifEnc *gif.Encoder
	if *gifOut != "" {
		f, err := os.Create(*gifOut)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		gifEnc = gif.NewGifEncoder(f, 4)
		encs = append(encs, gifEnc)
	}
	var mjEnc *mjpeg.Encoder
	if *serve != "" {
		mjEnc = mjpeg.NewEncoder(8)
		encs = append(encs, mjEnc)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/stream", mjEnc)
			mux.Handle("/ws", ws)
			mux.Handle("/debug/", http.DefaultServeMux)

			log.Printf("http://%s/stream", *serve)
			log.Println(http.ListenAndServe(*serve, mux))
		}()
	}

	src := newSource(*height, *width, *ttl, *dots, *seed)
	start := time.Now()
	var prev = src.next()
	updates, err := evconv.Diff(nil, prev, 1)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	for i := 0; i < *frames; i++ {
		steps, err := net.Forward(updates, prev)
		if err != nil {
			log.Fatalf("frame %d: %+v", i, err)
		}
		for j, step := range steps {
			info, _ := stats.Last(layers[j].Name())
			f := evconv.Frame{Layer: layers[j].Name(), Call: info.Call, Rules: info.Rules, Step: step}
			if gifEnc != nil && j == len(steps)-1 {
				if err := gifEnc.Encode(f); err != nil {
					log.Fatalf("%+v", err)
				}
			}
			if mjEnc != nil && j == 0 {
				if err := mjEnc.Encode(f); err != nil {
					log.Fatalf("%+v", err)
				}
			}
		}
		if *delay > 0 {
			time.Sleep(*delay)
		}

		next := src.next()
		if updates, err = evconv.Diff(prev, next, 1); err != nil {
			log.Fatalf("%+v", err)
		}
		prev = next
	}
	elapsed := time.Since(start)

	for _, l := range layers {
		log.Printf("%s: %d rules over %d frames", l.Name(), stats.TotalRules(l.Name()), *frames)
		log.Println(summarize(stats, l.Name()))
		if *verbose {
			fmt.Print(l.ExecLog())
		}
	}
	log.Printf("%d frames in %v", *frames, elapsed)

	for _, enc := range encs {
		if err := enc.Flush(); err != nil {
			log.Printf("flush: %+v", err)
		}
	}
	if *statsOut != "" {
		if err := stats.Dump(*statsOut); err != nil {
			log.Fatal(err)
		}
	}
	if *dotOut != "" {
		if err := ioutil.WriteFile(*dotOut, []byte(book.ToDot()), 0644); err != nil {
			log.Fatal(err)
		}
	}
	if *serve != "" {
		log.Println("stream finished, press ctrl-c to stop serving")
		select {}
	}
}
