package codesys

import (
	"encoding/xml"

	"github.com/plc-visualizer/plcforge/internal/codec"
	"github.com/plc-visualizer/plcforge/internal/models"
)

type cdataXML struct {
	Text string `xml:",cdata"`
}

type pouXML struct {
	XMLName        xml.Name `xml:"POU"`
	Name           string   `xml:"Name,attr"`
	POUType        string   `xml:"POUType,attr"`
	Language       string   `xml:"Language,attr"`
	Declaration    cdataXML `xml:"Declaration"`
	Implementation cdataXML `xml:"Implementation"`
}

type gvlXML struct {
	XMLName     xml.Name `xml:"GVL"`
	Name        string   `xml:"Name,attr"`
	Declaration cdataXML `xml:"Declaration"`
}

type applicationXML struct {
	XMLName xml.Name `xml:"Application"`
	Name    string   `xml:"Name,attr"`
}

// pouPayload renders u. Ladder and IL POUs carry the marked IL listing; ST
// POUs carry their source as is.
func pouPayload(u *models.POU) ([]byte, error) {
	x := pouXML{
		Name:        u.Name,
		POUType:     pouKeywords[u.Kind],
		Language:    string(u.Language),
		Declaration: cdataXML{Text: pouDeclaration(u)},
	}
	if u.Language == models.LangST {
		x.Implementation.Text = u.Body
	} else {
		x.Implementation.Text = codec.RungListing(u)
	}
	return marshalText(x)
}

func gvlPayload(name, declaration string) ([]byte, error) {
	return marshalText(gvlXML{Name: name, Declaration: cdataXML{Text: declaration}})
}
