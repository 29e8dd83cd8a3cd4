// Package statsview renders a socket's table occupancy as a table for
// CLI diagnostics, such as the --stats flag on the demo programs.
package statsview

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/relaylabs/rudp/internal/socket"
)

// Write renders one row per socket to w.
func Write(w io.Writer, sockets ...*socket.Socket) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetRowLine(true)
	table.SetHeader([]string{
		"Socket",
		"Local Addr",
		"USend\nDepth",
		"RRecv\nDepth",
	})

	for _, s := range sockets {
		st := s.Stats()
		table.Append([]string{
			st.ID,
			st.LocalAddr,
			strconv.Itoa(st.USendDepth),
			strconv.Itoa(st.RRecvDepth),
		})
	}
	table.Render()
}
