//go:build windows

package webgpu

// workgroupSize is the number of threads per 1-D workgroup.
const workgroupSize = 256

// gemmTile is the edge of the 2-D workgroup used by the GEMM shader.
const gemmTile = 16

// gemmShader computes C = alpha * op(A) * op(B) + beta * C.
// op(A) is [M, K], op(B) is [K, N]; a transposed operand is stored [K, M]
// (resp. [N, K]). With beta == 0 the previous contents of C are ignored.
const gemmShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> c: array<f32>;

struct Params {
    m: u32,
    n: u32,
    k: u32,
    trans_a: u32,
    trans_b: u32,
    alpha: f32,
    beta: f32,
    pad0: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.y;
    let col = global_id.x;
    if (row >= params.m || col >= params.n) {
        return;
    }

    var sum: f32 = 0.0;
    for (var p: u32 = 0u; p < params.k; p = p + 1u) {
        var ai: u32 = row * params.k + p;
        if (params.trans_a != 0u) {
            ai = p * params.m + row;
        }
        var bi: u32 = p * params.n + col;
        if (params.trans_b != 0u) {
            bi = col * params.k + p;
        }
        sum = sum + a[ai] * b[bi];
    }

    let ci = row * params.n + col;
    var prev: f32 = 0.0;
    if (params.beta != 0.0) {
        prev = params.beta * c[ci];
    }
    c[ci] = params.alpha * sum + prev;
}
`

// windowParams is shared by the im2col and col2im shaders. total is the
// number of invocations that do work; pitch is the x extent of the dispatch
// grid in threads, so invocation index = id.y * pitch + id.x.
const windowParams = `
struct Window {
    channels: u32,
    height: u32,
    width: u32,
    kernel_h: u32,
    kernel_w: u32,
    pad_h: u32,
    pad_w: u32,
    stride_h: u32,
    stride_w: u32,
    dilation_h: u32,
    dilation_w: u32,
    grid_h: u32,
    grid_w: u32,
    total: u32,
    pitch: u32,
    pad0: u32,
}
`

// im2colShader writes one element of the column matrix per invocation.
// Row (c*kH + i)*kW + j, column y*GridW + x; padding taps read as zero.
const im2colShader = windowParams + `
@group(0) @binding(0) var<storage, read> src: array<f32>;
@group(0) @binding(1) var<storage, read_write> dst: array<f32>;
@group(0) @binding(2) var<uniform> win: Window;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.y * win.pitch + global_id.x;
    if (idx >= win.total) {
        return;
    }

    let positions = win.grid_h * win.grid_w;
    let kernel_area = win.kernel_h * win.kernel_w;
    let row = idx / positions;
    let pos = idx % positions;

    let c = row / kernel_area;
    let tap = row % kernel_area;
    let i = tap / win.kernel_w;
    let j = tap % win.kernel_w;
    let y = pos / win.grid_w;
    let x = pos % win.grid_w;

    let ih = i32(y * win.stride_h + i * win.dilation_h) - i32(win.pad_h);
    let iw = i32(x * win.stride_w + j * win.dilation_w) - i32(win.pad_w);

    var v: f32 = 0.0;
    if (ih >= 0 && ih < i32(win.height) && iw >= 0 && iw < i32(win.width)) {
        v = src[(c * win.height + u32(ih)) * win.width + u32(iw)];
    }
    dst[idx] = v;
}
`

// col2imShader computes one image element per invocation by gathering every
// column entry whose tap lands on it. The gather form needs no atomics and
// sums taps in a fixed order.
const col2imShader = windowParams + `
@group(0) @binding(0) var<storage, read> src: array<f32>;
@group(0) @binding(1) var<storage, read_write> dst: array<f32>;
@group(0) @binding(2) var<uniform> win: Window;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.y * win.pitch + global_id.x;
    if (idx >= win.total) {
        return;
    }

    let plane = win.height * win.width;
    let c = idx / plane;
    let rem = idx % plane;
    let h = i32(rem / win.width) + i32(win.pad_h);
    let w = i32(rem % win.width) + i32(win.pad_w);
    let positions = win.grid_h * win.grid_w;

    var sum: f32 = 0.0;
    for (var i: u32 = 0u; i < win.kernel_h; i = i + 1u) {
        let yn = h - i32(i * win.dilation_h);
        if (yn < 0 || yn % i32(win.stride_h) != 0) {
            continue;
        }
        let y = u32(yn) / win.stride_h;
        if (y >= win.grid_h) {
            continue;
        }
        for (var j: u32 = 0u; j < win.kernel_w; j = j + 1u) {
            let xn = w - i32(j * win.dilation_w);
            if (xn < 0 || xn % i32(win.stride_w) != 0) {
                continue;
            }
            let x = u32(xn) / win.stride_w;
            if (x >= win.grid_w) {
                continue;
            }
            let row = (c * win.kernel_h + i) * win.kernel_w + j;
            sum = sum + src[row * positions + y * win.grid_w + x];
        }
    }
    dst[idx] = sum;
}
`
