// Command allocbench drives a Dispatcher against an mmap'd backing region
// with a randomized allocate/free workload, profiling CPU and heap usage
// along the way. It exists to exercise the allocator under realistic churn
// and to give the dispatcher's region pair a concrete memory provenance;
// it is not part of the allocator's public API.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime/pprof"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/shenjiangwei/baremetalAllocator/alloc"
	"github.com/shenjiangwei/baremetalAllocator/internal/pool"
)

const (
	KB = 1024
	MB = 1024 * 1024

	freelistLength = 4 * MB
	buddyLength    = 64 * MB
	buddyLeafSize  = 64

	minRequestSize = 16
	maxRequestSize = 256 * KB

	targetOps = 200000
)

type block struct {
	ptr  unsafe.Pointer
	size uintptr
}

func mmapRegion(length int) ([]byte, error) {
	return unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
}

func main() {
	mode := flag.String("mode", "basic", "bench mode: basic, stress")
	flag.Parse()

	cpuProfile, err := os.Create("cpu.prof")
	if err != nil {
		log.Fatalf("could not create CPU profile: %v", err)
	}
	defer cpuProfile.Close()
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		log.Fatalf("could not start CPU profile: %v", err)
	}
	defer pprof.StopCPUProfile()

	switch *mode {
	case "basic":
		runBasic()
	case "stress":
		runStress()
	default:
		fmt.Printf("unknown mode: %s (want basic or stress)\n", *mode)
		os.Exit(1)
	}

	memProfile, err := os.Create("mem.prof")
	if err != nil {
		log.Fatalf("could not create memory profile: %v", err)
	}
	defer memProfile.Close()
	if err := pprof.WriteHeapProfile(memProfile); err != nil {
		log.Fatalf("could not write memory profile: %v", err)
	}
}

func newDispatcher() (*alloc.Dispatcher, error) {
	flRegion, err := mmapRegion(freelistLength)
	if err != nil {
		return nil, fmt.Errorf("mmap freelist region: %w", err)
	}
	bdRegion, err := mmapRegion(buddyLength)
	if err != nil {
		return nil, fmt.Errorf("mmap buddy region: %w", err)
	}

	return alloc.NewDispatcher(alloc.DispatcherConfig{
		FreelistBase:   unsafe.Pointer(&flRegion[0]),
		FreelistLength: uintptr(len(flRegion)),
		BuddyBase:      unsafe.Pointer(&bdRegion[0]),
		BuddyLength:    uintptr(len(bdRegion)),
		BuddyLeafSize:  buddyLeafSize,
	}), nil
}

func randomSize() uintptr {
	return uintptr(minRequestSize + rand.Intn(maxRequestSize-minRequestSize))
}

// runBasic allocates until the dispatcher reports failure, releases a
// random fraction of what's outstanding, and repeats for a fixed number of
// rounds, the single-threaded shape a non-thread-safe core requires.
func runBasic() {
	d, err := newDispatcher()
	if err != nil {
		log.Fatalf("allocbench: %v", err)
	}

	const rounds = 5
	var blocks []block
	startTime := time.Now()

	for round := 1; round <= rounds; round++ {
		allocated := 0
		for {
			size := randomSize()
			ptr, err := d.Allocate(alloc.Layout{Size: size, Align: 8})
			if err != nil {
				break
			}
			blocks = append(blocks, block{ptr: ptr, size: size})
			allocated++
		}

		fmt.Printf("round %d: allocated %d blocks, %d bytes available\n", round, allocated, d.AvailableBytes())

		releaseRatio := 0.3 + rand.Float64()*0.2
		releaseCount := int(float64(len(blocks)) * releaseRatio)
		for i := 0; i < releaseCount && len(blocks) > 0; i++ {
			idx := rand.Intn(len(blocks))
			b := blocks[idx]
			blocks[idx] = blocks[len(blocks)-1]
			blocks = blocks[:len(blocks)-1]
			d.Deallocate(b.ptr, alloc.Layout{Size: b.size, Align: 8})
		}
	}

	fmt.Printf("basic run complete in %v, %d blocks still outstanding\n", time.Since(startTime), len(blocks))
}

// runStress drives the dispatcher behind a pooled front end for a fixed
// operation budget, favoring allocation over free the way a growing
// working set would.
func runStress() {
	d, err := newDispatcher()
	if err != nil {
		log.Fatalf("allocbench: %v", err)
	}

	p, err := pool.New(d, pool.Config{
		SmallBlockSize:  64,
		SmallCount:      256,
		MediumBlockSize: 4 * KB,
		MediumCount:     64,
		LargeBlockSize:  64 * KB,
		LargeCount:      8,
	})
	if err != nil {
		log.Fatalf("allocbench: building pool: %v", err)
	}

	var blocks []block
	startTime := time.Now()

	for ops := 0; ops < targetOps; ops++ {
		if len(blocks) == 0 || rand.Float64() < 0.7 {
			size := randomSize()
			ptr, err := p.Allocate(alloc.Layout{Size: size, Align: 8})
			if err != nil {
				continue
			}
			blocks = append(blocks, block{ptr: ptr, size: size})
			continue
		}

		idx := rand.Intn(len(blocks))
		b := blocks[idx]
		blocks[idx] = blocks[len(blocks)-1]
		blocks = blocks[:len(blocks)-1]
		p.Deallocate(b.ptr, alloc.Layout{Size: b.size, Align: 8})
	}

	stats := p.Stats()
	fmt.Printf("stress run complete in %v\n", time.Since(startTime))
	fmt.Printf("allocations: %d (hits %d, misses %d)\n", stats.TotalAllocations, stats.PoolHits, stats.PoolMisses)
	fmt.Printf("frees:       %d (hits %d, misses %d)\n", stats.TotalFrees, stats.PoolFreeHits, stats.PoolFreeMisses)
	fmt.Printf("outstanding: %d blocks, %d bytes available in dispatcher\n", len(blocks), d.AvailableBytes())
}
