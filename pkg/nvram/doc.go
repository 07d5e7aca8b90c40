// Package nvram provides a power-fail-safe key/value store on raw flash,
// used by the bootloader to keep A/B boot-slot bookkeeping.
//
// The store lives in two banks of a [flash.Device]. Each commit writes a
// complete snapshot, protected by two CRC32s, to the bank that is not
// active and with a higher counter. The previous bank is never touched, so
// a power cut during a commit leaves the old snapshot authoritative.
//
// # Basic Usage
//
//	dev, err := flash.OpenImage("/var/lib/bootnv.img", flash.ImageOptions{})
//	if err != nil {
//	    return err
//	}
//
//	env, err := nvram.Open(dev, nvram.Options{
//	    Boot: nvram.BootOptions{RunningPartition: 1},
//	})
//	if err != nil {
//	    return err
//	}
//	defer env.Close()
//
//	sel, err := env.SelectBootSlot()
//	if errors.Is(err, nvram.ErrNoBootableSlot) {
//	    // both slots exhausted: rescue mode
//	}
//
// # Layers
//
//   - [Store]: ordered key/value pairs with a dirty flag
//   - [Codec]: the byte-exact section format
//   - [Manager]: bank validation, selection and ping-pong commits
//   - [BootController]: slot selection with bounded retries
//   - [Env]: all of the above over one device
//
// # Concurrency
//
// Nothing in this package locks. One owner per device.
package nvram
