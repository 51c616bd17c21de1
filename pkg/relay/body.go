package relay

import (
	"fmt"
	"io"
	"net/http"
)

// maxBodySize limits ingest requests (a batch usually has 20 frames)
const maxBodySize = 4 << 20

func readBody(req *http.Request) ([]byte, error) {
	defer req.Body.Close()
	data, err := io.ReadAll(io.LimitReader(req.Body, maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBodySize {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxBodySize)
	}
	return data, nil
}
