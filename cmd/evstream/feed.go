package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorgonia/evconv"
	"github.com/gorilla/websocket"
)

// feed pushes the statistics of every completed Forward call to a websocket
// client. Records are dropped while nobody listens.
type feed struct {
	info chan evconv.StepInfo
}

var upgrader = websocket.Upgrader{} // use default options

func newFeed() *feed {
	return &feed{info: make(chan evconv.StepInfo, 64)}
}

// Observe implements evconv.Observer.
func (f *feed) Observe(info evconv.StepInfo) {
	if info.Phase != evconv.AfterAccumulate {
		return
	}
	select {
	case f.info <- info:
	default:
	}
}

func (f *feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Print("upgrade:", err)
		return
	}
	defer c.Close()
	for {
		var info evconv.StepInfo
		select {
		case info = <-f.info:
		case <-r.Context().Done():
			return
		}
		b, err := json.Marshal(info)
		if err != nil {
			log.Println("marshal:", err)
			return
		}
		if err = c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Println("write:", err)
			return
		}
	}
}
