package l5x

import "encoding/xml"

// Document layout of an RSLogix 5000 export. Only the parts a ladder
// project needs are modelled; everything else is ignored on read.

type contentXML struct {
	XMLName          xml.Name      `xml:"RSLogix5000Content"`
	SchemaRevision   string        `xml:"SchemaRevision,attr"`
	SoftwareRevision string        `xml:"SoftwareRevision,attr"`
	TargetName       string        `xml:"TargetName,attr"`
	TargetType       string        `xml:"TargetType,attr"`
	ContainsContext  string        `xml:"ContainsContext,attr"`
	Owner            string        `xml:"Owner,attr,omitempty"`
	ExportDate       string        `xml:"ExportDate,attr"`
	ExportOptions    string        `xml:"ExportOptions,attr,omitempty"`
	Controller       controllerXML `xml:"Controller"`
}

type controllerXML struct {
	Use           string       `xml:"Use,attr"`
	Name          string       `xml:"Name,attr"`
	ProcessorType string       `xml:"ProcessorType,attr,omitempty"`
	MajorRev      string       `xml:"MajorRev,attr,omitempty"`
	MinorRev      string       `xml:"MinorRev,attr,omitempty"`
	Description   *cdataXML    `xml:"Description,omitempty"`
	Tags          []tagXML     `xml:"Tags>Tag"`
	Programs      []programXML `xml:"Programs>Program"`
	Tasks         []taskXML    `xml:"Tasks>Task"`
}

type cdataXML struct {
	Text string `xml:",cdata"`
}

type tagXML struct {
	Name           string    `xml:"Name,attr"`
	TagType        string    `xml:"TagType,attr"`
	DataType       string    `xml:"DataType,attr,omitempty"`
	AliasFor       string    `xml:"AliasFor,attr,omitempty"`
	Radix          string    `xml:"Radix,attr,omitempty"`
	ExternalAccess string    `xml:"ExternalAccess,attr,omitempty"`
	Description    *cdataXML `xml:"Description,omitempty"`
	Data           []dataXML `xml:"Data"`
}

type dataXML struct {
	Format string `xml:"Format,attr"`
	Text   string `xml:",cdata"`
}

type programXML struct {
	Name            string       `xml:"Name,attr"`
	Type            string       `xml:"Type,attr"`
	MainRoutineName string       `xml:"MainRoutineName,attr,omitempty"`
	Disabled        string       `xml:"Disabled,attr"`
	Tags            []tagXML     `xml:"Tags>Tag"`
	Routines        []routineXML `xml:"Routines>Routine"`
}

type routineXML struct {
	Name        string    `xml:"Name,attr"`
	Type        string    `xml:"Type,attr"`
	Description *cdataXML `xml:"Description,omitempty"`
	Rungs       []rungXML `xml:"RLLContent>Rung"`
	Lines       []lineXML `xml:"STContent>Line"`
}

type rungXML struct {
	Number  int       `xml:"Number,attr"`
	Type    string    `xml:"Type,attr"`
	Comment *cdataXML `xml:"Comment,omitempty"`
	Text    cdataXML  `xml:"Text"`
}

type lineXML struct {
	Number int    `xml:"Number,attr"`
	Text   string `xml:",cdata"`
}

type taskXML struct {
	Name                 string         `xml:"Name,attr"`
	Type                 string         `xml:"Type,attr"`
	Priority             int            `xml:"Priority,attr"`
	Watchdog             int            `xml:"Watchdog,attr"`
	DisableUpdateOutputs string         `xml:"DisableUpdateOutputs,attr"`
	InhibitTask          string         `xml:"InhibitTask,attr"`
	Programs             []scheduledXML `xml:"ScheduledPrograms>ScheduledProgram"`
}

type scheduledXML struct {
	Name string `xml:"Name,attr"`
}
