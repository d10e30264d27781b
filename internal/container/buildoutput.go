package container

import (
	"bufio"
	"encoding/json"
	"io"
	"regexp"
)

// BuildStepStatus classifies a build step's state as reported on the
// progress callback.
type BuildStepStatus int

const (
	BuildStepRunning BuildStepStatus = iota
	BuildStepComplete
	BuildStepError
)

// BuildProgressEvent is one update from the image-build stream: a step
// transition (StepID non-empty) or a raw output line (LogLine).
type BuildProgressEvent struct {
	StepID   string
	StepName string
	Status   BuildStepStatus
	LogLine  string
}

// stepLine matches the legacy builder's "Step 2/5 : RUN apt-get update"
// stream lines that delimit build steps.
var stepLine = regexp.MustCompile(`^Step (\d+/\d+) : (.+)$`)

// buildEvent mirrors one line of the Docker build JSON-message stream.
// Docker reports build failures as a 200 response carrying an "error" or
// "errorDetail" field in the stream, not as an HTTP error; the built
// image's content digest arrives as an "aux" message.
type buildEvent struct {
	Stream      string `json:"stream"`
	Error       string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
	Aux struct {
		ID string `json:"ID"`
	} `json:"aux"`
}

type parsedBuildEvent struct {
	stream      string
	errorDetail string
	imageID     string
}

// buildMessageDecoder scans the newline-delimited JSON build output stream,
// tolerating a bounded run of unparsable lines (a "corrupted after 10
// consecutive failures" heuristic).
type buildMessageDecoder struct {
	scanner     *bufio.Scanner
	parseErrors int
}

func newBuildMessageDecoder(r io.Reader) *buildMessageDecoder {
	return &buildMessageDecoder{scanner: bufio.NewScanner(r)}
}

func (d *buildMessageDecoder) next() (parsedBuildEvent, bool, error) {
	for d.scanner.Scan() {
		var event buildEvent
		if err := json.Unmarshal(d.scanner.Bytes(), &event); err != nil {
			d.parseErrors++
			if d.parseErrors > 10 {
				return parsedBuildEvent{}, false, err
			}
			continue
		}
		d.parseErrors = 0

		msg := parsedBuildEvent{stream: event.Stream, imageID: event.Aux.ID}
		if event.Error != "" {
			msg.errorDetail = event.Error
		} else if event.ErrorDetail.Message != "" {
			msg.errorDetail = event.ErrorDetail.Message
		}
		return msg, true, nil
	}
	return parsedBuildEvent{}, false, d.scanner.Err()
}
