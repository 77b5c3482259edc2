// Package kio implements the token stream used to persist nnet models.
//
// A stream is written in one of two modes chosen once for the whole stream:
//
//	Binary mode:
//	  [2 bytes: header "\x00B"]
//	  tokens as "<Name> " (token plus one space)
//	  int32   as [1 byte: size 4][4 bytes little-endian]
//	  float64 as [1 byte: size 8][8 bytes little-endian IEEE-754]
//	  bool    as a single 'T' or 'F' byte
//	  vector  as "DV " [int32 length][float64 data]
//	  matrix  as "DM " [int32 rows][int32 cols][float64 data, row-major]
//
//	Text mode:
//	  no header, whitespace separated words
//	  vector  as "[ 1 2 3 ]"
//	  matrix  as "[\n  1 2\n  3 4 ]" (one line per row)
//
// Readers detect the mode from the first two bytes of the stream. Readers also
// accept single-precision records ("FV", "FM" and size-4 floats), which lets
// older single-precision models load unchanged.
//
// Example usage:
//
//	err := kio.WriteFile("final.mdl", true, func(w *kio.Writer) error {
//	    w.WriteToken("<Dim>")
//	    w.WriteInt(40)
//	    return nil
//	})
//
//	err = kio.ReadFile("final.mdl", func(r *kio.Reader) error {
//	    if err := r.ExpectToken("<Dim>"); err != nil {
//	        return err
//	    }
//	    dim, err := r.ReadInt()
//	    ...
//	})
package kio
