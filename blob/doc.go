// Package blob provides a reference-counted byte buffer that answers two
// capabilities: Blob for direct access and SequentialStream for io.Reader
// and io.Writer use. Either can be obtained from the other by query, and
// both share one count:
//
//	b, err := blob.New(ctx, data)
//	if err != nil {
//	    return err
//	}
//	r := ref.New[blob.Blob](b)
//	defer r.Release()
//
//	s, err := ref.Query[blob.SequentialStream](&r)
//	if err != nil {
//	    return err
//	}
//	defer s.Release()
//	io.Copy(dst, s.Get())
package blob
