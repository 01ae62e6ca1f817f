package exporter

import (
	"encoding/hex"
	"fmt"
	"io"
	"text/tabwriter"

	"objloader/pkg/core"
)

// previewBytes 是 chunk 打印时展示的字节数
const previewBytes = 32

// PrintNode 按类型打印节点详情 (cat 命令)
// 未知类型只打印信封，不尝试解析 Payload
func PrintNode(w io.Writer, n *core.Node) error {
	switch n.Type() {
	case core.TypeTree:
		return printTree(w, n)
	case core.TypeFile:
		return printFile(w, n)
	case core.TypeChunk:
		return printChunk(w, n)
	default:
		fmt.Fprintf(w, "ID:      %s\n", n.ID())
		fmt.Fprintf(w, "Type:    %s\n", n.Type())
		fmt.Fprintf(w, "Links:   %d\n", len(n.Links))
		fmt.Fprintf(w, "Payload: %s\n", fmtSize(int64(len(n.Payload))))
		for _, id := range n.Children() {
			fmt.Fprintf(w, "  -> %s\n", id)
		}
		return nil
	}
}

// PrintLine 打印一行摘要 (pull 命令边拉边打)，seq 是交付序号
func PrintLine(w io.Writer, seq int, n *core.Node) {
	fmt.Fprintf(w, "%6d  %s  %-5s  links=%d\n", seq, n.ID().Short(), n.Type(), len(n.Links))
}

func printTree(w io.Writer, n *core.Node) error {
	entries, err := core.TreeEntries(n)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "ID:   %s\n", n.ID())
	fmt.Fprintf(w, "Type: Tree\n\n")

	// 模拟 git ls-tree 的输出格式
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "KIND\tHASH\tSIZE\tNAME\n")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Kind, e.ID.Short(), fmtSize(e.Size), e.Name)
	}
	return tw.Flush()
}

func printFile(w io.Writer, n *core.Node) error {
	size, err := core.FileSize(n)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "ID:        %s\n", n.ID())
	fmt.Fprintf(w, "Type:      File\n")
	fmt.Fprintf(w, "TotalSize: %s\n", fmtSize(size))
	fmt.Fprintf(w, "Chunks:    %d\n", len(n.Links))
	return nil
}

func printChunk(w io.Writer, n *core.Node) error {
	data, err := core.ChunkData(n)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "ID:   %s\n", n.ID())
	fmt.Fprintf(w, "Type: Chunk (Raw Data)\n")
	fmt.Fprintf(w, "Size: %s\n\n", fmtSize(int64(len(data))))
	// 原始数据可能是二进制，只展示开头的 hex
	preview := data[:min(len(data), previewBytes)]
	fmt.Fprintf(w, "%s", hex.Dump(preview))
	if len(data) > previewBytes {
		fmt.Fprintf(w, "... (%d more bytes, use 'objl cat --raw' to save)\n", len(data)-previewBytes)
	}
	return nil
}

func fmtSize(s int64) string {
	if s < 1024 {
		return fmt.Sprintf("%dB", s)
	} else if s < 1024*1024 {
		return fmt.Sprintf("%.1fKB", float64(s)/1024)
	}
	return fmt.Sprintf("%.2fMB", float64(s)/1024/1024)
}
