package smbp

import "encoding/xml"

// projectXML is the root of a .smbp document.
type projectXML struct {
	XMLName            xml.Name     `xml:"ProjectDescriptor"`
	ProjectVersion     string       `xml:"ProjectVersion"`
	ManagementLevel    string       `xml:"ManagementLevel"`
	Name               string       `xml:"Name"`
	FullName           string       `xml:"FullName"`
	CurrentCultureName string       `xml:"CurrentCultureName"`
	Author             string       `xml:"Author,omitempty"`
	CreationDate       string       `xml:"CreationDate,omitempty"`
	Firmware           string       `xml:"FirmwareVersion,omitempty"`
	Software           softwareXML  `xml:"SoftwareConfiguration"`
	Hardware           *hardwareXML `xml:"HardwareConfiguration"`
}

type softwareXML struct {
	POUs          []pouXML        `xml:"Pous>ProgramOrganizationUnits"`
	Symbols       []symbolXML     `xml:"Symbols>SymbolEntity,omitempty"`
	TimersTM      []timerXML      `xml:"Timers>TimerTM,omitempty"`
	TimersLegacy  []timerXML      `xml:"Timers>Timer,omitempty"`
	Counters      []counterXML    `xml:"Counters>Counter,omitempty"`
	FunctionBlock []fbInstXML     `xml:"FunctionBlocks>FunctionBlockInstance,omitempty"`
	Memory        *memoryXML      `xml:"MemoryAllocation"`
	Notes         []string        `xml:"ConversionNotes>Note,omitempty"`
	Warnings      []diagnosticXML `xml:"Warnings>Warning,omitempty"`
}

type pouXML struct {
	Name          string      `xml:"Name"`
	SectionNumber int         `xml:"SectionNumber"`
	Kind          string      `xml:"Kind,omitempty"`
	Language      string      `xml:"Language,omitempty"`
	Symbols       []symbolXML `xml:"LocalSymbols>SymbolEntity,omitempty"`
	Rungs         []rungXML   `xml:"Rungs>RungEntity"`
}

type rungXML struct {
	Index            *int        `xml:"Index"`
	Elements         []ladderXML `xml:"LadderElements>LadderEntity"`
	Lines            []lineXML   `xml:"InstructionLines>InstructionLineEntity"`
	Name             string      `xml:"Name"`
	MainComment      string      `xml:"MainComment"`
	Label            string      `xml:"Label,omitempty"`
	IsLadderSelected bool        `xml:"IsLadderSelected"`
}

type ladderXML struct {
	ElementType          string `xml:"ElementType"`
	Descriptor           string `xml:"Descriptor,omitempty"`
	Comment              string `xml:"Comment,omitempty"`
	Symbol               string `xml:"Symbol,omitempty"`
	Row                  int    `xml:"Row"`
	Column               int    `xml:"Column"`
	ChosenConnection     string `xml:"ChosenConnection"`
	Storage              string `xml:"CoilStorage,omitempty"`
	Shape                string `xml:"LineShape,omitempty"`
	TimerType            string `xml:"TimerType,omitempty"`
	TimeBase             string `xml:"TimeBase,omitempty"`
	CounterType          string `xml:"CounterType,omitempty"`
	Preset               *int64 `xml:"Preset"`
	BlockType            string `xml:"BlockType,omitempty"`
	ComparisonExpression string `xml:"ComparisonExpression,omitempty"`
	OperationExpression  string `xml:"OperationExpression,omitempty"`
	Label                string `xml:"JumpLabel,omitempty"`
}

type lineXML struct {
	InstructionLine string `xml:"InstructionLine"`
	Comment         string `xml:"Comment"`
}

type symbolXML struct {
	Address string `xml:"Address,omitempty"`
	Symbol  string `xml:"Symbol"`
	Type    string `xml:"Type,omitempty"`
	Comment string `xml:"Comment,omitempty"`
	Initial string `xml:"InitialValue,omitempty"`
}

// timerXML covers both declaration shapes: <TimerTM> carries <Base>,
// <Timer> carries <TimeBase>.
type timerXML struct {
	Address    string `xml:"Address"`
	Index      int    `xml:"Index"`
	Symbol     string `xml:"Symbol,omitempty"`
	Comment    string `xml:"Comment,omitempty"`
	TimerType  string `xml:"TimerType"`
	Preset     int64  `xml:"Preset"`
	Base       string `xml:"Base,omitempty"`
	TimeBase   string `xml:"TimeBase,omitempty"`
	Allocation string `xml:"Allocation,omitempty"`
	Pou        string `xml:"PouName,omitempty"`
}

type counterXML struct {
	Address     string `xml:"Address"`
	Index       int    `xml:"Index"`
	Symbol      string `xml:"Symbol,omitempty"`
	Comment     string `xml:"Comment,omitempty"`
	CounterType string `xml:"CounterType,omitempty"`
	Preset      int64  `xml:"Preset"`
	Allocation  string `xml:"Allocation,omitempty"`
	Pou         string `xml:"PouName,omitempty"`
}

type fbInstXML struct {
	Name    string `xml:"Name"`
	Type    string `xml:"Type"`
	Comment string `xml:"Comment,omitempty"`
	Pou     string `xml:"PouName,omitempty"`
}

type allocXML struct {
	Capacity   int    `xml:"Capacity"`
	Forced     int    `xml:"Forced"`
	Allocation string `xml:"Allocation,omitempty"`
}

type memoryXML struct {
	Bits        allocXML `xml:"MemoryBits"`
	Words       allocXML `xml:"MemoryWords"`
	DoubleWords allocXML `xml:"MemoryDoubleWords"`
	Timers      allocXML `xml:"Timers"`
	Counters    allocXML `xml:"Counters"`
}

type diagnosticXML struct {
	Kind    string `xml:"Kind"`
	Path    string `xml:"Path,omitempty"`
	Message string `xml:"Message"`
}

type hardwareXML struct {
	Cpu cpuXML `xml:"Plc>Cpu"`
}

// ioXML holds the channel lists shared by the CPU and its extensions.
type ioXML struct {
	DigitalInputs  []discreteXML `xml:"DigitalInputs>DiscretInput,omitempty"`
	DigitalOutputs []discreteXML `xml:"DigitalOutputs>DiscretOutput,omitempty"`
	AnalogInputs   []analogXML   `xml:"AnalogInputs>AnalogIO,omitempty"`
	AnalogOutputs  []analogXML   `xml:"AnalogOutputs>AnalogIO,omitempty"`
	HighSpeed      []discreteXML `xml:"HighSpeedCounters>HighSpeedCounter,omitempty"`
	PulseTrain     []discreteXML `xml:"PulseTrainOutputs>PulseTrainOutput,omitempty"`
}

type cpuXML struct {
	Index      int    `xml:"Index"`
	Reference  string `xml:"Reference"`
	HardwareID string `xml:"HardwareId,omitempty"`
	ioXML
	Ethernet   *struct{} `xml:"EthernetConfiguration"`
	Serial     *struct{} `xml:"SerialLineConfiguration"`
	Extensions []extXML  `xml:"Extensions>ModuleExtensionObject,omitempty"`
}

type extXML struct {
	Index      int    `xml:"Index"`
	Reference  string `xml:"Reference,omitempty"`
	HardwareID string `xml:"HardwareId,omitempty"`
	ioXML
}

type discreteXML struct {
	Address string `xml:"Address"`
	Index   int    `xml:"Index"`
	Symbol  string `xml:"Symbol,omitempty"`
	Comment string `xml:"Comment,omitempty"`
	Filter  string `xml:"FilterType,omitempty"`
	Latch   bool   `xml:"Latch,omitempty"`
}

type analogXML struct {
	Address string `xml:"Address"`
	Index   int    `xml:"Index"`
	Symbol  string `xml:"Symbol,omitempty"`
	Comment string `xml:"Comment,omitempty"`
	Type    string `xml:"Type"`
	Scope   string `xml:"Scope"`
	Minimum int    `xml:"Minimum"`
	Maximum int    `xml:"Maximum"`
}
