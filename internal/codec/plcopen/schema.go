package plcopen

import "encoding/xml"

const (
	// Namespace is the TC6 v2.01 namespace written by the encoder.
	Namespace = "http://www.plcopen.org/xml/tc6_0201"
	// NamespaceV200 is the older namespace still accepted on read.
	NamespaceV200 = "http://www.plcopen.org/xml/tc6_0200"

	nsXHTML = "http://www.w3.org/1999/xhtml"
)

// projectXML is the document root. XMLName is untagged so the reader can
// accept either namespace; the writer sets it explicitly.
type projectXML struct {
	XMLName       xml.Name
	FileHeader    fileHeaderXML    `xml:"fileHeader"`
	ContentHeader contentHeaderXML `xml:"contentHeader"`
	Types         typesXML         `xml:"types"`
	Instances     instancesXML     `xml:"instances"`
	AddData       *addDataXML      `xml:"addData"`
}

type fileHeaderXML struct {
	CompanyName      string `xml:"companyName,attr"`
	ProductName      string `xml:"productName,attr"`
	ProductVersion   string `xml:"productVersion,attr"`
	CreationDateTime string `xml:"creationDateTime,attr"`
}

type contentHeaderXML struct {
	Name           string            `xml:"name,attr"`
	Author         string            `xml:"author,attr,omitempty"`
	CoordinateInfo coordinateInfoXML `xml:"coordinateInfo"`
}

type scalingXML struct {
	X int `xml:"x,attr"`
	Y int `xml:"y,attr"`
}

type coordinateInfoXML struct {
	FBD scalingXML `xml:"fbd>scaling"`
	LD  scalingXML `xml:"ld>scaling"`
	SFC scalingXML `xml:"sfc>scaling"`
}

type typesXML struct {
	DataTypes struct{} `xml:"dataTypes"`
	POUs      []pouXML `xml:"pous>pou"`
}

type pouXML struct {
	Name      string        `xml:"name,attr"`
	POUType   string        `xml:"pouType,attr"`
	Interface *interfaceXML `xml:"interface"`
	Body      bodyXML       `xml:"body"`
}

type interfaceXML struct {
	LocalVars []variableXML `xml:"localVars>variable"`
}

type variableXML struct {
	Name          string     `xml:"name,attr"`
	Address       string     `xml:"address,attr,omitempty"`
	Type          typeXML    `xml:"type"`
	InitialValue  *simpleXML `xml:"initialValue>simpleValue"`
	Documentation *xhtmlXML  `xml:"documentation>xhtml"`
}

// typeXML holds one elementary type element such as <BOOL/> or a
// <derived name="..."/> reference.
type typeXML struct {
	Inner string `xml:",innerxml"`
}

type simpleXML struct {
	Value string `xml:"value,attr"`
}

type xhtmlXML struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
}

type xhtmlCDATA struct {
	XMLName xml.Name
	Text    string `xml:",cdata"`
}

type bodyXML struct {
	LD *ldXML      `xml:"LD"`
	IL *xhtmlCDATA `xml:"IL>xhtml"`
	ST *xhtmlCDATA `xml:"ST>xhtml"`
}

type ldXML struct {
	Items []ldItem `xml:",any"`
}

// ldItem is the union of every LD body element. Attribute and child order
// follow the TC6 schema for each element kind.
type ldItem struct {
	XMLName       xml.Name
	LocalID       int           `xml:"localId,attr"`
	Height        int           `xml:"height,attr,omitempty"`
	Width         int           `xml:"width,attr,omitempty"`
	Negated       string        `xml:"negated,attr,omitempty"`
	Storage       string        `xml:"storage,attr,omitempty"`
	TypeName      string        `xml:"typeName,attr,omitempty"`
	InstanceName  string        `xml:"instanceName,attr,omitempty"`
	Label         string        `xml:"label,attr,omitempty"`
	Position      positionXML   `xml:"position"`
	Content       *xhtmlXML     `xml:"content>xhtml"`
	In            []connInXML   `xml:"connectionPointIn"`
	Inputs        *blockVarsXML `xml:"inputVariables"`
	InOuts        *blockVarsXML `xml:"inOutVariables"`
	Outputs       *blockVarsXML `xml:"outputVariables"`
	Outs          []connOutXML  `xml:"connectionPointOut"`
	Variable      string        `xml:"variable,omitempty"`
	Expression    string        `xml:"expression,omitempty"`
	Documentation *xhtmlXML     `xml:"documentation>xhtml"`
	Unknown       []xml.Attr    `xml:",any,attr"`
}

type positionXML struct {
	X int `xml:"x,attr"`
	Y int `xml:"y,attr"`
}

type connInXML struct {
	Connections []connXML `xml:"connection"`
}

type connXML struct {
	RefLocalID      int    `xml:"refLocalId,attr"`
	FormalParameter string `xml:"formalParameter,attr,omitempty"`
}

type connOutXML struct {
	FormalParameter string `xml:"formalParameter,attr,omitempty"`
}

type blockVarsXML struct {
	Variables []blockVarXML `xml:"variable"`
}

type blockVarXML struct {
	FormalParameter string      `xml:"formalParameter,attr"`
	In              *connInXML  `xml:"connectionPointIn"`
	Out             *connOutXML `xml:"connectionPointOut"`
}

type instancesXML struct {
	Configurations []configurationXML `xml:"configurations>configuration"`
}

type configurationXML struct {
	Name      string        `xml:"name,attr"`
	Resources []resourceXML `xml:"resource"`
}

type resourceXML struct {
	Name       string        `xml:"name,attr"`
	GlobalVars []variableXML `xml:"globalVars>variable"`
}

type addDataXML struct {
	Data []dataXML `xml:"data"`
}

type dataXML struct {
	Name          string  `xml:"name,attr"`
	HandleUnknown string  `xml:"handleUnknown,attr"`
	Project       *extXML `xml:"plcforge"`
}

// extXML carries what TC6 has no element for: hardware, memory, instance
// declarations and rung flags.
type extXML struct {
	Target     string       `xml:"target,attr"`
	Firmware   string       `xml:"firmware,attr,omitempty"`
	Catalog    string       `xml:"catalog,attr,omitempty"`
	HardwareID string       `xml:"hardwareId,attr,omitempty"`
	Source     string       `xml:"sourceDialect,attr,omitempty"`
	Identity   *identityXML `xml:"identity"`
	Modules    []moduleXML  `xml:"hardware>module"`
	Memory     *memoryXML   `xml:"memory"`
	POUs       []pouExtXML  `xml:"pou"`
	VarLists   []varListXML `xml:"varList"`
	Notes      []string     `xml:"note"`
	Warnings   []warningXML `xml:"warning"`
}

type identityXML struct {
	DeviceType    string `xml:"deviceType,attr,omitempty"`
	DeviceID      string `xml:"deviceId,attr,omitempty"`
	DeviceVersion string `xml:"deviceVersion,attr,omitempty"`
}

type moduleXML struct {
	Index      int          `xml:"index,attr"`
	Type       string       `xml:"type,attr"`
	Catalog    string       `xml:"catalog,attr,omitempty"`
	HardwareID string       `xml:"hardwareId,attr,omitempty"`
	Channels   []channelXML `xml:"channel"`
}

type channelXML struct {
	Index      int    `xml:"index,attr"`
	Symbol     string `xml:"symbol,attr,omitempty"`
	Comment    string `xml:"comment,attr,omitempty"`
	Filter     string `xml:"filter,attr,omitempty"`
	Latch      bool   `xml:"latch,attr,omitempty"`
	AnalogType string `xml:"analogType,attr,omitempty"`
	Scope      string `xml:"scope,attr,omitempty"`
	Min        int    `xml:"min,attr,omitempty"`
	Max        int    `xml:"max,attr,omitempty"`
}

type allocXML struct {
	Capacity int    `xml:"capacity,attr"`
	Forced   int    `xml:"forced,attr,omitempty"`
	Policy   string `xml:"policy,attr,omitempty"`
}

type memoryXML struct {
	Bits        allocXML `xml:"bits"`
	Words       allocXML `xml:"words"`
	DoubleWords allocXML `xml:"doubleWords"`
	Timers      allocXML `xml:"timers"`
	Counters    allocXML `xml:"counters"`
}

type pouExtXML struct {
	Name      string        `xml:"name,attr"`
	Language  string        `xml:"language,attr"`
	GUID      string        `xml:"guid,attr,omitempty"`
	Instances []instanceXML `xml:"instance"`
	Rungs     []rungFlagXML `xml:"rung"`
}

type instanceXML struct {
	Kind       string `xml:"kind,attr"`
	Descriptor string `xml:"descriptor,attr"`
	Symbol     string `xml:"symbol,attr,omitempty"`
	Comment    string `xml:"comment,attr,omitempty"`
	Type       string `xml:"type,attr,omitempty"`
	Preset     int64  `xml:"preset,attr"`
	Base       string `xml:"base,attr,omitempty"`
	Allocation string `xml:"allocation,attr,omitempty"`
}

type rungFlagXML struct {
	Index          int    `xml:"index,attr"`
	Label          string `xml:"label,attr,omitempty"`
	LadderSelected bool   `xml:"ladderSelected,attr"`
}

type varListXML struct {
	Name string `xml:"name,attr"`
	GUID string `xml:"guid,attr,omitempty"`
	Body string `xml:",cdata"`
}

type warningXML struct {
	Kind    string `xml:"kind,attr"`
	Path    string `xml:"path,attr,omitempty"`
	Message string `xml:",chardata"`
}
