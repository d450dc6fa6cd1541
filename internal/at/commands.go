// Package at holds the AT command table of the UG96 family and the line
// codec used to talk to it.
package at

import (
	"bytes"
	"sort"
)

// Command identifies a registered AT command. Values follow the lexical
// order of the tokens, so a Command is also its index in the table.
type Command uint8

const (
	CCLK Command = iota
	CGATT
	CGDCONT
	CGPADDR
	CMEE
	CMGD
	CMGF
	CMGL
	CMGR
	CMGS
	CMTI
	COPS
	CPMS
	CREG
	CSCA
	CSCS
	CSQ
	GSN
	QCCID
	QCFG
	QFDEL
	QFUPL
	QGPS
	QGPSCFG
	QGPSEND
	QGPSLOC
	QIACT
	QICLOSE
	QICSGP
	QIDEACT
	QIDNSCFG
	QIDNSGIP
	QIOPEN
	QIRD
	QISEND
	QIURC
	QSSLCFG
	QSSLCLOSE
	QSSLOPEN
	QSSLRECV
	QSSLSEND
	QSSLURC

	numCommands
)

// Shape describes how the modem answers a command.
type Shape uint8

const (
	// ShapeOK is a bare OK/ERROR answer.
	ShapeOK Shape = iota
	// ShapeParamOK carries one or more "+TOKEN: ..." lines before OK.
	ShapeParamOK
	// ShapeString is answered by a single untagged line and no OK (SEND OK).
	ShapeString
	// ShapeStringOK is an untagged line followed by OK (GSN).
	ShapeStringOK
)

// Descriptor is one entry of the command table.
type Descriptor struct {
	Token        string
	Shape        Shape
	Notification bool
	ID           Command
}

func (d *Descriptor) String() string { return d.Token }

var table = [numCommands]Descriptor{
	{Token: "+CCLK", Shape: ShapeParamOK},
	{Token: "+CGATT", Shape: ShapeParamOK},
	{Token: "+CGDCONT", Shape: ShapeOK},
	{Token: "+CGPADDR", Shape: ShapeParamOK},
	{Token: "+CMEE", Shape: ShapeOK},
	{Token: "+CMGD", Shape: ShapeOK},
	{Token: "+CMGF", Shape: ShapeOK},
	{Token: "+CMGL", Shape: ShapeParamOK},
	{Token: "+CMGR", Shape: ShapeParamOK},
	{Token: "+CMGS", Shape: ShapeParamOK},
	{Token: "+CMTI", Shape: ShapeOK, Notification: true},
	{Token: "+COPS", Shape: ShapeParamOK},
	{Token: "+CPMS", Shape: ShapeParamOK},
	{Token: "+CREG", Shape: ShapeParamOK, Notification: true},
	{Token: "+CSCA", Shape: ShapeParamOK},
	{Token: "+CSCS", Shape: ShapeOK},
	{Token: "+CSQ", Shape: ShapeParamOK},
	{Token: "+GSN", Shape: ShapeStringOK},
	{Token: "+QCCID", Shape: ShapeParamOK},
	{Token: "+QCFG", Shape: ShapeOK},
	{Token: "+QFDEL", Shape: ShapeOK},
	{Token: "+QFUPL", Shape: ShapeParamOK},
	{Token: "+QGPS", Shape: ShapeOK},
	{Token: "+QGPSCFG", Shape: ShapeOK},
	{Token: "+QGPSEND", Shape: ShapeOK},
	{Token: "+QGPSLOC", Shape: ShapeParamOK},
	{Token: "+QIACT", Shape: ShapeOK},
	{Token: "+QICLOSE", Shape: ShapeOK},
	{Token: "+QICSGP", Shape: ShapeOK},
	{Token: "+QIDEACT", Shape: ShapeOK},
	{Token: "+QIDNSCFG", Shape: ShapeParamOK},
	{Token: "+QIDNSGIP", Shape: ShapeOK},
	{Token: "+QIOPEN", Shape: ShapeOK, Notification: true},
	{Token: "+QIRD", Shape: ShapeParamOK},
	{Token: "+QISEND", Shape: ShapeString},
	{Token: "+QIURC", Shape: ShapeOK, Notification: true},
	{Token: "+QSSLCFG", Shape: ShapeOK},
	{Token: "+QSSLCLOSE", Shape: ShapeOK},
	{Token: "+QSSLOPEN", Shape: ShapeOK, Notification: true},
	{Token: "+QSSLRECV", Shape: ShapeParamOK},
	{Token: "+QSSLSEND", Shape: ShapeString},
	{Token: "+QSSLURC", Shape: ShapeOK, Notification: true},
}

func init() {
	for i := range table {
		table[i].ID = Command(i)
	}
	if !sort.SliceIsSorted(table[:], func(i, j int) bool { return table[i].Token < table[j].Token }) {
		panic("at: command table is not sorted")
	}
}

// Get returns the descriptor of cmd.
func Get(cmd Command) *Descriptor {
	return &table[cmd]
}

func (c Command) String() string {
	if c >= numCommands {
		return "AT?"
	}
	return table[c].Token
}

// compareLine orders line against token. A line matches only when the token is
// followed by ':'; a longer token sharing the prefix sorts after the shorter
// one, so a non-':' continuation is reported as greater to keep searching right.
func compareLine(line []byte, token string) int {
	n := len(token)
	if len(line) < n {
		return bytes.Compare(line, []byte(token))
	}
	if r := bytes.Compare(line[:n], []byte(token)); r != 0 {
		return r
	}
	if len(line) > n && line[n] == ':' {
		return 0
	}
	return 1
}

// Lookup finds the command a response or notification line belongs to.
func Lookup(line []byte) (*Descriptor, bool) {
	if len(line) == 0 || line[0] != '+' {
		return nil, false
	}
	lo, hi := 0, len(table)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		switch r := compareLine(line, table[mid].Token); {
		case r == 0:
			return &table[mid], true
		case r < 0:
			hi = mid
		default:
			lo = mid + 1
		}
	}
	return nil, false
}
