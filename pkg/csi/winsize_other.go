//go:build !unix

package csi

import "golang.org/x/term"

// GetWinsize reports the grid size only; pixel sizes are unavailable here.
func GetWinsize(fd int) (Winsize, error) {
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return Winsize{}, err
	}
	return Winsize{Cols: cols, Rows: rows}, nil
}
