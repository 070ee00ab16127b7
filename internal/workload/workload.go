// Package workload provides programs that generate load worth measuring.
package workload

import "math/rand"

// Numbers returns size random values for Sum.
func Numbers(size int) []int32 {
	numbers := make([]int32, size)
	for i := range numbers {
		numbers[i] = rand.Int31()
	}
	return numbers
}

// Sum adds numbers sequentially.
func Sum(numbers []int32) int64 {
	var sum int64
	for _, i := range numbers {
		sum += int64(i)
	}
	return sum
}

// MatMul multiplies two n×n matrices with the naive i-k-j loop and returns
// the trace of the product.
func MatMul(n int) float64 {
	a := make([]float64, n*n)
	b := make([]float64, n*n)
	c := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a[i*n+j] = float64(i + j)
			b[i*n+j] = float64(i - j)
		}
	}
	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			aik := a[i*n+k]
			for j := 0; j < n; j++ {
				c[i*n+j] += aik * b[k*n+j]
			}
		}
	}
	var trace float64
	for i := 0; i < n; i++ {
		trace += c[i*n+i]
	}
	return trace
}

// CacheLine is the assumed cache line size in bytes.
const CacheLine = 64

// Stride touches one word per stride bytes of buf, passes times over, and
// returns the sum of the words read. With buf several times larger than the
// last level cache and stride of at least a cache line, almost every access
// misses.
func Stride(buf []int64, stride, passes int) int64 {
	step := stride / 8
	if step < 1 {
		step = 1
	}
	var sum int64
	for p := 0; p < passes; p++ {
		for off := 0; off < step; off++ {
			for i := off; i < len(buf); i += step {
				sum += buf[i]
				buf[i]++
			}
		}
	}
	return sum
}

// StrideBuffer allocates a buffer of at least size bytes for Stride.
func StrideBuffer(size int) []int64 {
	return make([]int64, (size+7)/8)
}
