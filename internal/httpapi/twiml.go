package httpapi

import (
	"encoding/xml"
	"net/http"
	"strconv"
	"strings"

	"github.com/antoniostano/phonedesk/internal/turn"
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type twimlSay struct {
	XMLName  xml.Name `xml:"Say"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	Timeout       int      `xml:"timeout,attr"`
	SpeechTimeout string   `xml:"speechTimeout,attr"`
	NumDigits     int      `xml:"numDigits,attr"`
	Language      string   `xml:"language,attr,omitempty"`
	Say           twimlSay
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr"`
	URL     string   `xml:",chardata"`
}

type twimlDial struct {
	XMLName xml.Name `xml:"Dial"`
	Number  string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// renderTwiML turns a turn response into call-control markup: speak, then
// gather the next utterance, transfer to staff, or hang up. A gather that
// hears nothing falls through to the redirect, which posts an empty turn.
func renderTwiML(resp turn.Response, language string) twimlResponse {
	say := twimlSay{Language: language, Text: resp.Text}
	switch {
	case resp.Gather:
		next := turnPath + "?turn=" + strconv.Itoa(resp.NextTurn)
		if resp.NextTurn <= 0 {
			next = turnPath
		}
		return twimlResponse{Verbs: []any{
			twimlGather{
				Input:         "speech dtmf",
				Action:        next,
				Method:        http.MethodPost,
				Timeout:       resp.TimeoutSeconds,
				SpeechTimeout: "auto",
				NumDigits:     1,
				Language:      language,
				Say:           say,
			},
			twimlRedirect{Method: http.MethodPost, URL: next},
		}}
	case resp.TransferNumber != "":
		return twimlResponse{Verbs: []any{say, twimlDial{Number: resp.TransferNumber}}}
	default:
		return twimlResponse{Verbs: []any{say, twimlHangup{}}}
	}
}

func respondTwiML(w http.ResponseWriter, doc twimlResponse) {
	out, err := xml.Marshal(doc)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "render_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

func languageForRegion(region string) string {
	switch strings.ToLower(strings.TrimSpace(region)) {
	case "nz":
		return "en-NZ"
	case "uk", "gb":
		return "en-GB"
	case "us":
		return "en-US"
	case "ca":
		return "en-CA"
	case "ie":
		return "en-IE"
	default:
		return "en-AU"
	}
}
