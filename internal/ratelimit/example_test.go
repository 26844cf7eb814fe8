package ratelimit_test

import (
	"context"
	"fmt"

	"octapulse/internal/ratelimit"
)

func ExampleNew() {
	p := ratelimit.New(250)
	fmt.Println("gap:", p.Interval())

	for range 3 {
		if err := p.Wait(context.Background()); err != nil {
			return
		}
	}
	fmt.Println("paced:", p != nil)
	// Output:
	// gap: 4ms
	// paced: true
}
