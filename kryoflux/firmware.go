package kryoflux

import (
	"bytes"
	"fmt"
)

const (
	firmwareAddress = 0x00202000
	writeChunk      = 16384
	readChunk       = 6400
)

// bootloaderLine reads one CR LF terminated reply of the bootloader.
func (c *Client) bootloaderLine() (string, error) {
	var line []byte
	buf := make([]byte, 512)
	for len(line) < 512 {
		n, err := c.usb.Read(buf[:512-len(line)])
		if err != nil {
			return "", err
		}
		line = append(line, buf[:n]...)
		if bytes.HasSuffix(line, []byte("\n\r")) {
			break
		}
	}
	return string(line), nil
}

// bootloader sends one command, then waits for the reply when asked.
func (c *Client) bootloader(cmd string, reply bool) error {
	if _, err := c.usb.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("bootloader command %s: %w", cmd, err)
	}
	if !reply {
		return nil
	}
	if _, err := c.bootloaderLine(); err != nil {
		return fmt.Errorf("bootloader did not answer %s: %w", cmd, err)
	}
	return nil
}

// uploadFirmware writes the image through the bootloader, reads it
// back for verification and jumps to it.
func (c *Client) uploadFirmware(fw []byte) error {
	for _, cmd := range []string{"N#", "V#"} {
		if err := c.bootloader(cmd, true); err != nil {
			return err
		}
	}
	if err := c.bootloader(fmt.Sprintf("S%08x,%08x#", firmwareAddress, len(fw)), false); err != nil {
		return err
	}
	for offs := 0; offs < len(fw); offs += writeChunk {
		if _, err := c.usb.Write(fw[offs:min(offs+writeChunk, len(fw))]); err != nil {
			return fmt.Errorf("failed to write firmware at offset %d: %w", offs, err)
		}
	}

	if err := c.bootloader(fmt.Sprintf("R%08x,%08x#", firmwareAddress, len(fw)), false); err != nil {
		return err
	}
	verify := make([]byte, readChunk)
	for offs := 0; offs < len(fw); {
		n, err := c.usb.Read(verify[:min(readChunk, len(fw)-offs)])
		if err != nil {
			return fmt.Errorf("failed to read back firmware at offset %d: %w", offs, err)
		}
		if i := mismatch(verify[:n], fw[offs:]); i >= 0 {
			return fmt.Errorf("firmware verification failed at offset %d", offs+i)
		}
		offs += n
	}

	return c.bootloader(fmt.Sprintf("G%08x#", firmwareAddress), false)
}

// mismatch returns the first index where a differs from b, or -1.
func mismatch(a, b []byte) int {
	for i := range a {
		if i >= len(b) || a[i] != b[i] {
			return i
		}
	}
	return -1
}
