// Package vm is the Go facing API over the bridge. It wraps bridge handles
// in typed objects that release themselves when closed or collected.
//
//	l, err := vm.New(bridge.StdLibAllSafe)
//	if err != nil {
//		return err
//	}
//	defer l.Close()
//	out, err := l.DoString("=main", "return 1 + 1")
package vm
